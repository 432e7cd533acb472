package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"startidy/internal/config"
	"startidy/internal/github"
	"startidy/internal/llm"
	"startidy/internal/logging"
	"startidy/internal/pipeline"
)

const version = "0.2.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "star-tidy",
		Short:        "Organize GitHub starred repositories into star lists with AI classification",
		SilenceUsage: true,
		// Bare invocation behaves like `star-tidy run` with config defaults.
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			return runClassification(cfg, verbose)
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	root.AddCommand(runCmd(), configCmd(), testLLMCmd(), versionCmd())
	return root
}

func runCmd() *cobra.Command {
	var (
		configPath  string
		mode        string
		model       string
		apiBase     string
		excludes    []string
		batchSize   int
		concurrency int
		maxRetries  int
		maxTokens   int
		temperature float32

		dryRun        bool
		multiCategory bool
		prune         bool

		autoComplete    bool
		enhanceExisting bool
		useAISummary    bool
		includeStats    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify starred repos and reconcile star lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Only flags the user actually set override the config file and
			// environment.
			flags := cmd.Flags()
			if flags.Changed("mode") {
				cfg.Mode = mode
			}
			if flags.Changed("model") {
				cfg.Model = model
			}
			if flags.Changed("api-base") {
				cfg.OpenAIAPIBase = apiBase
			}
			if flags.Changed("exclude-repo") {
				cfg.ExcludeRepos = excludes
			}
			if flags.Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if flags.Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if flags.Changed("max-retries") {
				cfg.MaxRetries = maxRetries
			}
			if flags.Changed("max-tokens") {
				cfg.MaxTokens = maxTokens
			}
			if flags.Changed("temperature") {
				cfg.Temperature = temperature
			}
			if flags.Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if flags.Changed("multi-category") {
				cfg.MultiCategory = multiCategory
			}
			if flags.Changed("prune") {
				cfg.Prune = prune
			}
			if flags.Changed("auto-complete-summaries") {
				cfg.Summary.AutoComplete = autoComplete
			}
			if flags.Changed("enhance-existing-summaries") {
				cfg.Summary.EnhanceExisting = enhanceExisting
			}
			if flags.Changed("use-ai-summary") {
				cfg.Summary.UseAISummary = useAISummary
			}
			if flags.Changed("include-stats") {
				cfg.Summary.IncludeStats = includeStats
			}

			verbose, _ := flags.GetBool("verbose")
			return runClassification(cfg, verbose)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.Flags().StringVar(&mode, "mode", config.ModeAuto, "Classification mode: auto or existing_lists")
	cmd.Flags().StringVar(&model, "model", "", "Model to use (e.g. gpt-4o-mini)")
	cmd.Flags().StringVar(&apiBase, "api-base", "", "OpenAI-compatible API base URL")
	cmd.Flags().StringArrayVar(&excludes, "exclude-repo", nil, "Exclude a repository (owner/name, repeatable)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Repositories per model call")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent model calls")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Retries for malformed model output")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	cmd.Flags().Float32Var(&temperature, "temperature", 0, "Sampling temperature (0-2)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and report operations without applying them")
	cmd.Flags().BoolVar(&multiCategory, "multi-category", false, "Allow a repo in multiple lists")
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove repos from lists they were re-assigned away from")
	cmd.Flags().BoolVar(&autoComplete, "auto-complete-summaries", true, "Fill in missing list descriptions")
	cmd.Flags().BoolVar(&enhanceExisting, "enhance-existing-summaries", true, "Rewrite existing list descriptions")
	cmd.Flags().BoolVar(&useAISummary, "use-ai-summary", true, "Use the model for list descriptions")
	cmd.Flags().BoolVar(&includeStats, "include-stats", true, "Include repository statistics in descriptions")
	return cmd
}

func runClassification(cfg *config.Config, verbose bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog := logging.Setup(cfg.LogFile, verbose)
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gh := github.NewClient(cfg.GitHubToken)
	model := llm.NewClient(cfg.OpenAIAPIBase, cfg.OpenAIAPIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature)

	report, err := pipeline.Run(ctx, cfg, pipeline.Deps{
		Source:  gh,
		Mutator: gh,
		LLM:     model,
		Log:     logger,
	})
	if report != nil {
		fmt.Print(report.Render())
	}
	return err
}

func configCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			for _, kv := range cfg.Redacted() {
				fmt.Printf("%-28s %s\n", kv[0], kv[1])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	return cmd
}

func testLLMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-llm",
		Short: "Check model API connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			if cfg.OpenAIAPIKey == "" {
				return fmt.Errorf("no API key configured; set OPENAI_API_KEY")
			}

			fmt.Printf("API base: %s\nModel:    %s\n", cfg.OpenAIAPIBase, cfg.Model)

			client := llm.NewClient(cfg.OpenAIAPIBase, cfg.OpenAIAPIKey, cfg.Model, 20, cfg.Temperature)
			resp, err := client.Complete(cmd.Context(),
				"You are a connectivity check.",
				"Respond with 'OK' if you can read this.")
			if err != nil {
				return fmt.Errorf("model call failed: %w", err)
			}
			fmt.Printf("Response: %s\n", resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("star-tidy v%s\n", version)
		},
	}
}
