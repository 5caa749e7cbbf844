package audio

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Platform represents the current operating system platform
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

// PlatformInfo describes the host's audio capabilities.
type PlatformInfo struct {
	OS             Platform
	HasAudioDevice bool
	PulseAudio     bool
	IsCI           bool
}

// ciVars are set by common CI providers.
var ciVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"BUILDKITE",
}

// IsCI detects if we're running in a CI environment or mock audio was
// requested through GOBLIN_MOCK_AUDIO.
func IsCI() bool {
	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}
	if os.Getenv("GOBLIN_MOCK_AUDIO") == "true" {
		log.Debug("Mock audio requested via environment variable")
		return true
	}
	return false
}

// DetectPlatform detects the current platform and audio capabilities
func DetectPlatform() *PlatformInfo {
	info := &PlatformInfo{
		OS:   getPlatform(),
		IsCI: IsCI(),
	}

	switch info.OS {
	case PlatformLinux:
		info.PulseAudio = isCommandAvailable("pactl")
		info.HasAudioDevice = checkLinuxAudioDevices()
	case PlatformDarwin, PlatformWindows:
		// CoreAudio and WASAPI are assumed present
		info.HasAudioDevice = true
	}

	log.Debug("Platform detected",
		"os", info.OS,
		"has_device", info.HasAudioDevice,
		"pulseaudio", info.PulseAudio,
		"is_ci", info.IsCI)

	return info
}

func getPlatform() Platform {
	switch runtime.GOOS {
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformUnknown
	}
}

func checkLinuxAudioDevices() bool {
	if entries, err := os.ReadDir("/dev/snd"); err == nil {
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), "pcm") {
				return true
			}
		}
	}

	if content, err := os.ReadFile("/proc/asound/cards"); err == nil &&
		len(content) > 0 && !strings.Contains(string(content), "no soundcards") {
		return true
	}

	if isCommandAvailable("pactl") {
		if output, err := exec.Command("pactl", "list", "short", "sinks").Output(); err == nil && len(output) > 0 {
			return true
		}
	}

	log.Debug("No Linux audio devices found")
	return false
}

func isCommandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// ShouldUseMockAudio determines if mock audio should be used based on platform info
func (p *PlatformInfo) ShouldUseMockAudio() bool {
	return p.IsCI || !p.HasAudioDevice
}

// BufferSize returns the output buffer duration recommended for the platform.
func (p *PlatformInfo) BufferSize() time.Duration {
	switch p.OS {
	case PlatformDarwin:
		return 40 * time.Millisecond
	case PlatformWindows:
		return 40 * time.Millisecond
	default:
		if p.PulseAudio {
			return 30 * time.Millisecond
		}
		return 20 * time.Millisecond
	}
}

func (p *PlatformInfo) retryPolicy() (int, time.Duration) {
	switch {
	case p.OS == PlatformDarwin:
		// CoreAudio can race during initialization
		return 3, 200 * time.Millisecond
	case p.OS == PlatformWindows:
		return 2, 150 * time.Millisecond
	case p.PulseAudio:
		return 2, 100 * time.Millisecond
	default:
		return 1, 0
	}
}

func (p *PlatformInfo) readyTimeout() time.Duration {
	if p.OS == PlatformDarwin {
		return 10 * time.Second
	}
	return 5 * time.Second
}

// String returns a string representation of the platform info
func (p *PlatformInfo) String() string {
	return fmt.Sprintf("Platform{OS: %s, HasDevice: %v, PulseAudio: %v, IsCI: %v}",
		p.OS, p.HasAudioDevice, p.PulseAudio, p.IsCI)
}
