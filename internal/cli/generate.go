package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vietddude/genroute/internal/core/domain"
	"github.com/vietddude/genroute/internal/metrics"
	"github.com/vietddude/genroute/internal/routing"
)

var (
	genTask        string
	genPrompt      string
	genModel       string
	genNoFallback  bool
	genAspectRatio string
	genSize        string
	genSeed        int64
	genNegative    string
	genReplicas    int
	genOut         string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation through the routing engine",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genTask, "task", "", "task name (required)")
	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "prompt text (required)")
	generateCmd.Flags().StringVar(&genModel, "model", "", "force a specific model key")
	generateCmd.Flags().BoolVar(&genNoFallback, "no-fallback", false, "fail instead of falling back when the forced model fails")
	generateCmd.Flags().StringVar(&genAspectRatio, "aspect-ratio", "", "aspect ratio, e.g. 16:9")
	generateCmd.Flags().StringVar(&genSize, "size", "", "image size, e.g. 1024x1024")
	generateCmd.Flags().Int64Var(&genSeed, "seed", -1, "generation seed (-1 = unset)")
	generateCmd.Flags().StringVar(&genNegative, "negative-prompt", "", "negative prompt")
	generateCmd.Flags().IntVar(&genReplicas, "replicas", 0, "number of images (0 = task default)")
	generateCmd.Flags().StringVar(&genOut, "out", "out.png", "output file; replicas beyond the first get a numeric suffix")
	_ = generateCmd.MarkFlagRequired("task")
	_ = generateCmd.MarkFlagRequired("prompt")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	engine, err := routing.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := srv.Start(); err != nil {
				slog.Debug("Metrics server stopped", "error", err)
			}
		}()
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	opts := domain.RequestOptions{
		Task:           genTask,
		Prompt:         genPrompt,
		AspectRatio:    genAspectRatio,
		Size:           genSize,
		NegativePrompt: genNegative,
		Replicas:       genReplicas,
		ForcedModel:    domain.ModelKey(genModel),
		NoFallback:     genNoFallback,
	}
	if genSeed >= 0 {
		seed := genSeed
		opts.Seed = &seed
	}

	result, err := engine.Generate(ctx, opts)
	if err != nil {
		return err
	}

	for i, payload := range result.Payloads {
		path := genOut
		if i > 0 {
			ext := filepath.Ext(genOut)
			path = fmt.Sprintf("%s-%d%s", genOut[:len(genOut)-len(ext)], i+1, ext)
		}
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		slog.Info("Wrote output", "path", path, "bytes", len(payload))
	}

	slog.Info("Done", "provider", result.Provider, "model", result.Model, "request_id", result.RequestID)
	return nil
}
