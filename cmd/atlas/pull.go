package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atlasml/atlas/internal/hub"
)

func pullCmd() *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "Download a model snapshot from the hub",
		ArgsUsage: "<owner/name>",
		Flags:     append(commonHubFlags(), loggingFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyCommonConfig(c, LoadConfig())
			log := newLogger()

			repo := c.Args().First()
			if repo == "" {
				return cli.Exit("error: a model id is required, e.g. `atlas pull meta-llama/Llama-3.1-8B`", 1)
			}
			if _, _, err := hub.ParseRepo(repo); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			dir, err := resolveCacheDir(cacheDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			client, err := hub.NewClient(dir, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if u := resolveHubURL(hubURL); u != "" {
				client.BaseURL = u
			}

			start := time.Now()
			snapshot, err := client.Snapshot(ctx, repo, revision)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: pull %s: %v", repo, err), 1)
			}
			fmt.Printf("Pulled %s@%s in %s\n", repo, revision, time.Since(start).Round(time.Millisecond))
			fmt.Printf("Snapshot: %s\n", snapshot)
			return nil
		},
	}
}
