package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/hub"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls", "models"},
		Usage:   "List cached model snapshots",
		Flags:   append(commonHubFlags(), loggingFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyCommonConfig(c, LoadConfig())
			log := newLogger()

			dir, err := resolveCacheDir(cacheDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			client, err := hub.NewClient(dir, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			cached, err := client.ListCached()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(cached) == 0 {
				log.Info("no cached models", "cache", dir)
				return nil
			}

			fmt.Printf("Models in %s:\n\n", dir)
			for _, entry := range cached {
				repo, rev := splitCachedEntry(entry)
				arch := ""
				if snapDir, err := client.LocalDir(repo, rev); err == nil {
					if cfg, err := config.Load(filepath.Join(snapDir, config.ConfigFileName)); err == nil {
						arch = cfg.Type()
					}
				}
				if arch != "" {
					fmt.Printf("  %-48s (%s)\n", entry, arch)
				} else {
					fmt.Printf("  %-48s\n", entry)
				}
			}
			fmt.Printf("\n%d model(s) found\n", len(cached))
			return nil
		},
	}
}

func splitCachedEntry(entry string) (repo, rev string) {
	for i := len(entry) - 1; i >= 0; i-- {
		if entry[i] == '@' {
			return entry[:i], entry[i+1:]
		}
	}
	return entry, hub.DefaultRevision
}
