package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "goblin").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "goblin.log"), nil
}

// setupLog sends log output to a file in the user cache dir, since the
// terminal belongs to the piano.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
