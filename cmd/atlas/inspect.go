package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/hub"
	"github.com/atlasml/atlas/internal/logger"
	"github.com/atlasml/atlas/internal/safetensors"
	"github.com/atlasml/atlas/internal/tokenizer"
)

func inspectCmd() *cli.Command {
	var showTensors bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the contents of a model snapshot",
		ArgsUsage: "<owner/name | directory>",
		Flags: append(append(commonHubFlags(), loggingFlags()...),
			&cli.BoolFlag{
				Name:        "tensors",
				Usage:       "list every tensor with shape and dtype",
				Destination: &showTensors,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyCommonConfig(c, LoadConfig())
			log := newLogger()

			target := c.Args().First()
			if target == "" {
				return cli.Exit("error: a model id or snapshot directory is required", 1)
			}

			dir, err := resolveSnapshotDir(target, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			cfg, err := config.Load(filepath.Join(dir, config.ConfigFileName))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read config: %v", err), 1)
			}
			fmt.Printf("Snapshot: %s\n", dir)
			fmt.Printf("Architecture: %s\n", cfg.Type())
			printConfigSummary(cfg)

			if tok, err := tokenizer.Load(dir); err == nil {
				fmt.Printf("Tokenizer: BPE, vocab=%d bos=%d eos=%d\n",
					tok.VocabSize(), tok.BOSID(), tok.EOSID())
			} else {
				fmt.Println("Tokenizer: none")
			}

			gen, err := config.LoadGeneration(filepath.Join(dir, config.GenerationFileName))
			if err != nil {
				fmt.Printf("Generation config: invalid (%v)\n", err)
			} else {
				fmt.Printf("Generation: do_sample=%t temp=%g top_k=%d top_p=%g\n",
					gen.DoSample, gen.Temperature, gen.TopK, gen.TopP)
			}

			cp, err := safetensors.OpenCheckpoint(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open checkpoint: %v", err), 1)
			}
			names := cp.Names()
			sort.Strings(names)
			fmt.Printf("Checkpoint: %d tensors in %d shard(s)\n", len(names), cp.NumShards())

			if showTensors {
				fmt.Println()
				for _, name := range names {
					info, _ := cp.Tensor(name)
					fmt.Printf("  %-64s %-8s %v\n", name, info.DType, info.Shape)
				}
			}
			return nil
		},
	}
}

// resolveSnapshotDir accepts either a local snapshot directory or a cached
// "owner/name" id.
func resolveSnapshotDir(target string, log logger.Logger) (string, error) {
	if st, err := os.Stat(target); err == nil && st.IsDir() {
		return filepath.Clean(target), nil
	}

	repo, rev := splitCachedEntry(target)
	if _, _, err := hub.ParseRepo(repo); err != nil {
		return "", fmt.Errorf("%q is neither a directory nor a model id: %w", target, err)
	}
	dir, err := resolveCacheDir(cacheDir)
	if err != nil {
		return "", err
	}
	client, err := hub.NewClient(dir, log)
	if err != nil {
		return "", err
	}
	snapDir, err := client.LocalDir(repo, rev)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(snapDir, config.ConfigFileName)); err != nil {
		return "", fmt.Errorf("%s is not cached; run `atlas pull %s` first", target, repo)
	}
	log.Debug("resolved snapshot", "id", target, "dir", snapDir)
	return snapDir, nil
}

func printConfigSummary(cfg config.Config) {
	switch c := cfg.(type) {
	case *config.Llama:
		printTextSummary(c)
	case *config.Qwen3:
		printTextSummary(&c.Llama)
	case *config.AriaText:
		printTextSummary(&c.Llama)
		printMoESummary(c)
	case *config.Aria:
		printTextSummary(&c.TextConfig.Llama)
		printMoESummary(c.TextConfig)
		fmt.Printf("vision: image_size=%d patch_size=%d hidden=%d\n",
			c.VisionConfig.ImageSize, c.VisionConfig.PatchSize, c.VisionConfig.HiddenSize)
	case *config.Wav2Vec2:
		fmt.Printf("audio: hidden=%d layers=%d sampling_rate=%d\n",
			c.HiddenSize, c.NumHiddenLayers, c.SamplingRate)
	}
}

func printTextSummary(c *config.Llama) {
	fmt.Printf("layers=%d hidden=%d ffn=%d heads=%d kv_heads=%d head_dim=%d vocab=%d ctx=%d\n",
		c.NumHiddenLayers, c.HiddenSize, c.IntermediateSize,
		c.NumAttentionHeads, c.NumKeyValueHeads, c.ResolvedHeadDim(),
		c.VocabSize, c.MaxPosition)
	fmt.Printf("rope: base=%g eps=%g\n", c.RopeTheta, c.RMSNormEps)
}

func printMoESummary(c *config.AriaText) {
	fmt.Printf("moe: experts=%d top_k=%d shared=%d expert_ffn=%d\n",
		c.MoENumExperts, c.MoETopK, c.MoENumSharedExperts, c.MoEIntermediateSize)
}
