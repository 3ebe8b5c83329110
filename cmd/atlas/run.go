package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/generation"
	"github.com/atlasml/atlas/internal/hub"
	"github.com/atlasml/atlas/internal/model"
	"github.com/atlasml/atlas/internal/tokenizer"
)

func runCmd() *cli.Command {
	var (
		prompt        string
		maxNew        int64
		temp          float64
		topK          int64
		topP          float64
		minP          float64
		repeatPenalty float64
		seed          int64
		sample        bool
		showConfig    bool
		showTokens    bool
		cpuProfile    string
		memProfile    string
	)

	return &cli.Command{
		Name:      "run",
		Usage:     "Run text generation against a cached model",
		ArgsUsage: "[owner/name]",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text (omit for interactive mode)",
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "max-new-tokens",
				Aliases:     []string{"n"},
				Usage:       "number of tokens to generate (0 = generation config default)",
				Destination: &maxNew,
			},
			&cli.BoolFlag{
				Name:        "sample",
				Usage:       "enable sampling even when the generation config is greedy",
				Destination: &sample,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature",
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Aliases:     []string{"top_k", "topk"},
				Usage:       "top-k sampling parameter",
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Aliases:     []string{"top_p", "topp"},
				Usage:       "top-p sampling parameter",
				Destination: &topP,
			},
			&cli.Float64Flag{
				Name:        "min-p",
				Aliases:     []string{"min_p", "minp"},
				Usage:       "min-p sampling parameter (0.0 = disabled)",
				Destination: &minP,
			},
			&cli.Float64Flag{
				Name:        "repeat-penalty",
				Aliases:     []string{"repeat_penalty"},
				Usage:       "repetition penalty (1.0 = disabled)",
				Destination: &repeatPenalty,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling RNG seed (default -1 = random)",
				Value:       -1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "show-config",
				Usage:       "print model summary before generation",
				Value:       true,
				Destination: &showConfig,
			},
			&cli.BoolFlag{
				Name:        "show-tokens",
				Usage:       "print prompt token ids",
				Destination: &showTokens,
			},
			&cli.StringFlag{
				Name:        "cpuprofile",
				Usage:       "write cpu profile to file",
				Destination: &cpuProfile,
			},
			&cli.StringFlag{
				Name:        "memprofile",
				Usage:       "write memory profile to file",
				Destination: &memProfile,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			fileCfg := LoadConfig()
			applyCommonConfig(c, fileCfg)
			applyRunConfig(c, fileCfg, &temp, &topK, &topP, &maxNew, &repeatPenalty, &seed)
			log := newLogger()

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("could not create CPU profile: %v", err), 1)
				}
				defer func() { _ = f.Close() }()
				if err := pprof.StartCPUProfile(f); err != nil {
					return cli.Exit(fmt.Sprintf("could not start CPU profile: %v", err), 1)
				}
				defer pprof.StopCPUProfile()
			}
			if memProfile != "" {
				defer func() {
					f, err := os.Create(memProfile)
					if err != nil {
						fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
						return
					}
					defer func() { _ = f.Close() }()
					if err := pprof.WriteHeapProfile(f); err != nil {
						fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
					}
				}()
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

			cached, err := client.ListCached()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			modelID, err := resolveRunModel(c.Args().First(), cached, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			repo, rev := splitCachedEntry(modelID)
			if !strings.Contains(modelID, "@") && c.IsSet("revision") {
				rev = revision
			}

			loadStart := time.Now()
			snapDir, err := client.Snapshot(ctx, repo, rev)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: fetch %s: %v", modelID, err), 1)
			}
			m, err := model.Load(snapDir, int(maxContext), log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			tok, err := tokenizer.Load(snapDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
			}
			gen, err := config.LoadGeneration(filepath.Join(snapDir, config.GenerationFileName))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applySamplingOverrides(c, gen, sample, temp, topK, topP, minP, repeatPenalty, maxNew, seed)
			if seed == -1 && gen.Seed == 0 {
				gen.Seed = time.Now().UnixNano()
			}

			generator := generation.New(m, tok, gen, log)
			fmt.Fprintf(os.Stderr, "Model loaded in %s\n", time.Since(loadStart).Round(time.Millisecond))

			if showConfig {
				fmt.Fprintf(os.Stderr, "%s | arch=%s ctx=%d\n", repo, m.Arch, m.MaxContext)
				fmt.Fprintf(os.Stderr, "sampling: do_sample=%t temp=%.3g top_k=%d top_p=%.3g repeat_penalty=%.3g\n",
					gen.DoSample, gen.Temperature, gen.TopK, gen.TopP, gen.RepetitionPenalty)
			}

			generate := func(text string) error {
				if showTokens {
					if ids, err := tok.Encode(text); err == nil {
						fmt.Fprintf(os.Stderr, "Input tokens (%d): %v\n", len(ids), ids)
					}
				}
				result, err := generator.Generate(ctx, text, func(piece string) {
					fmt.Print(piece)
				})
				if err != nil {
					return err
				}
				fmt.Println()
				tps := float64(len(result.TokenIDs)) / result.Duration.Seconds()
				fmt.Fprintf(os.Stderr, "Stats: %.2f TPS (%d tokens in %s, finish=%s)\n",
					tps, len(result.TokenIDs), result.Duration.Round(time.Millisecond), result.FinishReason)
				return nil
			}

			if prompt != "" {
				return generate(prompt)
			}

			fmt.Fprintln(os.Stderr, "Interactive mode. Type /exit to quit.")
			for {
				line, err := readInteractiveLine("> ")
				if err != nil {
					break
				}
				line = strings.TrimSpace(line)
				if line == "/exit" {
					break
				}
				if line == "" {
					continue
				}
				if err := generate(line); err != nil {
					fmt.Fprintln(os.Stderr, "error: generation:", err)
					break
				}
			}
			return nil
		},
	}
}

// applySamplingOverrides writes explicitly set CLI flags (or config-file
// values already resolved into the variables) over the snapshot's generation
// defaults.
func applySamplingOverrides(c *cli.Command, gen *config.Generation, sample bool,
	temp float64, topK int64, topP, minP, repeatPenalty float64, maxNew, seed int64,
) {
	if sample {
		gen.DoSample = true
	}
	if temp > 0 {
		gen.Temperature = temp
	}
	if topK > 0 {
		gen.TopK = int(topK)
	}
	if topP > 0 {
		gen.TopP = topP
	}
	if c.IsSet("min-p") || c.IsSet("min_p") || c.IsSet("minp") {
		gen.MinP = minP
	}
	if repeatPenalty > 0 {
		gen.RepetitionPenalty = repeatPenalty
	}
	if maxNew > 0 {
		gen.MaxNewTokens = int(maxNew)
	}
	if seed >= 0 {
		gen.Seed = seed
	}
	gen.Normalize()
}
