package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/goblinnotes/goblin/internal/cache"
	"github.com/goblinnotes/goblin/internal/failure"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the persistent asset store",
	Args:  cobra.NoArgs,
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		store := openStore(cfg)
		defer store.Close() //nolint:errcheck
		ac := cache.NewAssetCache(store, nil, cfg.Cache.Namespace, cfg.Cache.Version)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", keyword("backend:"), cfg.Cache.Backend)
		fmt.Fprintf(out, "%s %s:%s\n", keyword("namespace:"), cfg.Cache.Namespace, cfg.Cache.Version)
		if !ac.IsStorageAvailable() {
			fmt.Fprintln(out, failed("storage unavailable"))
			return nil
		}

		entries := ac.Entries()
		sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

		var total uint64
		for _, e := range entries {
			total += uint64(e.Size) //nolint:gosec
		}
		fmt.Fprintf(out, "%s %d (%s of %s)\n", keyword("assets:"),
			len(entries), humanize.Bytes(total), humanize.Bytes(uint64(cfg.Cache.Capacity))) //nolint:gosec

		if verbose {
			for _, e := range entries {
				fmt.Fprintf(out, "  %-48s %s\n", e.Path, faint(humanize.Bytes(uint64(e.Size)))) //nolint:gosec
			}
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored asset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store := openStore(cfg)
		defer store.Close() //nolint:errcheck
		ac := cache.NewAssetCache(store, nil, cfg.Cache.Namespace, cfg.Cache.Version)

		n, err := ac.Clear()
		if errors.Is(err, failure.ErrStorageUnavailable) {
			fmt.Fprintln(cmd.OutOrStdout(), failed("storage unavailable, nothing to clear"))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s records.\n", humanize.Comma(int64(n)))
		return nil
	},
}

func init() {
	cacheStatusCmd.Flags().BoolP("verbose", "v", false, "list every stored asset")
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)
}
