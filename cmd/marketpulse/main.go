// Command marketpulse serves a news-driven market sentiment indicator.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seenimoa/marketpulse/api"
	"github.com/seenimoa/marketpulse/internal/config"
	"github.com/seenimoa/marketpulse/internal/logging"
	"github.com/seenimoa/marketpulse/internal/market"
	"github.com/seenimoa/marketpulse/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketpulse",
	Short: "marketpulse: market sentiment from economic news",
	Long: `marketpulse scores economic news articles by sentiment, weights each
article by the sector it covers, and reduces the batch to a single market
indicator (Negative, Neutral or Positive) served over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = logging.New(cfg.Logging, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(articleCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marketpulse %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server. The sentiment classifier is initialised first;
a failure aborts startup. Unless SKIP_INITIAL_ANALYSIS is true, a full
analysis runs in the background right after startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, -1)
		if err != nil {
			return err
		}

		srv := api.NewServer(cfg, a.service,
			api.WithMetrics(a.metrics),
			api.WithLLMProvider(a.provider),
			api.WithLogger(logger.With("component", "api")),
		)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe(ctx, cfg.Addr()) }()

		if err := a.initClassifier(ctx); err != nil {
			stop()
			<-errCh
			return err
		}

		if cfg.Pipeline.SkipInitialAnalysis {
			logger.Info("initial analysis skipped", "env", "SKIP_INITIAL_ANALYSIS")
		} else {
			go func() {
				rctx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RefreshTimeout)
				defer cancel()
				if _, err := a.service.Refresh(rctx); err != nil {
					logger.Warn("initial analysis did not complete", "error", err)
				}
			}()
		}

		if cfg.Pipeline.RefreshSchedule != "" {
			sched := market.NewScheduler(a.service, cfg.Pipeline.RefreshTimeout, logger.With("component", "scheduler"))
			if err := sched.Start(cfg.Pipeline.RefreshSchedule); err != nil {
				stop()
				<-errCh
				return err
			}
			defer sched.Stop()
		}

		return <-errCh
	},
}

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one full analysis and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RefreshTimeout)
		defer cancel()

		a, err := newApp(ctx, cfg, logger, limit)
		if err != nil {
			return err
		}
		if err := a.initClassifier(ctx); err != nil {
			return err
		}

		snap, err := a.service.Refresh(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(snap)
		}
		printSnapshot(snap)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Int("limit", -1, "score only the first N articles (default: pipeline.limit)")
	analyzeCmd.Flags().Bool("json", false, "print the full snapshot as JSON")
}

// --- Article Command ---

var articleCmd = &cobra.Command{
	Use:   "article",
	Short: "Classify and extract a single article",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, -1)
		if err != nil {
			return err
		}
		if err := a.initClassifier(ctx); err != nil {
			return err
		}

		result, err := a.service.AnalyzeSingle(ctx, models.Article{ID: id, Title: title, Content: content})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	articleCmd.Flags().String("id", "cli", "article id")
	articleCmd.Flags().String("title", "", "article title")
	articleCmd.Flags().String("content", "", "article body")
	_ = articleCmd.MarkFlagRequired("title")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and API key status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  marketpulse System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Provider:  %s (model: %s)\n", cfg.LLM.Primary, cfg.LLM.Model)
		fmt.Printf("    Classifier:    %s (%s)\n", cfg.Classifier.Backend, cfg.Classifier.URL)
		if len(cfg.Data.FeedURLs) > 0 {
			fmt.Printf("    Articles:      %d feed(s)\n", len(cfg.Data.FeedURLs))
		} else {
			fmt.Printf("    Articles:      %s\n", cfg.Data.ArticlesPath)
		}
		fmt.Printf("    Coefficients:  %s\n", cfg.Data.CoefficientsPath)
		fmt.Printf("    Limit:         %d (0 = all)\n", cfg.Pipeline.Limit)
		fmt.Printf("    Skip initial:  %t\n", cfg.Pipeline.SkipInitialAnalysis)
		fmt.Printf("    API Server:    %s\n", cfg.Addr())
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSnapshot(snap *models.MarketSnapshot) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSECTOR\tSENTIMENT\tCOEF\tSCORE\tTITLE")
	for _, r := range snap.Articles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%s\n",
			r.ID, r.Sector, r.SentimentLabel, r.Coefficient, r.ArticleScore, r.Title)
	}
	tw.Flush()

	fmt.Println()
	fmt.Printf("Articles:          %d (extraction failures: %d, classification failures: %d)\n",
		snap.ArticleCount, snap.ExtractionFailures, snap.ClassificationFailures)
	fmt.Printf("Total market score: %.2f\n", snap.TotalScore)
	fmt.Printf("Evaluation:         %s\n", snap.Verdict)
}
