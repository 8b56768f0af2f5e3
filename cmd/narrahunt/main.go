package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"narrahunt/internal/config"
	"narrahunt/internal/crawl"
	"narrahunt/internal/database"
	"narrahunt/internal/engine"
	"narrahunt/internal/llm"
	"narrahunt/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "narrahunt",
	Short:   "Autonomous narrative discovery engine",
	Long:    "Narrahunt tracks entity/artifact-type combinations, crawls their sources, and turns extracted artifacts into new research objectives.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(matrixCmd)
	rootCmd.AddCommand(discoveriesCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("narrahunt", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/narrahunt/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure entities, sources, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show matrix and discovery statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Entities:")
		fmt.Printf("  Total: %d\n", stats.Entities)
		fmt.Printf("  Promoted from discoveries: %d\n", stats.PromotedEntities)
		fmt.Println("\nMatrix cells:")
		fmt.Printf("  Total: %d\n", stats.Cells)
		fmt.Printf("  Pending: %d\n", stats.PendingCells)
		fmt.Printf("  Exhausted: %d\n", stats.ExhaustedCells)
		fmt.Println("\nDiscoveries:")
		fmt.Printf("  Total: %d\n", stats.Discoveries)
		fmt.Printf("  High value (>= 0.8): %d\n", stats.HighValue)
		fmt.Println("\nReports:")
		fmt.Printf("  Total: %d\n", stats.Reports)
		fmt.Printf("  Flagged (dead sources): %d\n", stats.FlaggedReports)
		return nil
	},
}

// --- run command ---

var (
	cycles       int
	fixturesPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run research cycles: objective -> crawl -> extract -> score -> store -> feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fetcher, err := buildFetcher()
		if err != nil {
			return err
		}

		provider := llm.CreateProvider(
			cfg.LLM.Provider,
			cfg.LLM.Model,
			cfg.LLM.OllamaURL,
			cfg.LLM.OpenAIModel,
			cfg.LLM.APIKeyEnv,
		)

		eng, err := engine.New(cfg, db, fetcher, provider)
		if err != nil {
			return err
		}

		results, err := eng.Run(context.Background(), cycles)
		if err != nil {
			return err
		}

		fmt.Printf("\nCompleted %d cycle(s):\n", len(results))
		for _, r := range results {
			flag := ""
			if r.Flagged {
				flag = " [flagged]"
			}
			fmt.Printf("  %s/%s: %d discoveries, %d failed sources, cell %s%s\n",
				r.Entity, r.ArtifactType, len(r.Discoveries), len(r.FailedSources), r.CellStatus, flag)
			for _, name := range r.Promoted {
				fmt.Printf("    promoted new entity: %s\n", name)
			}
		}
		fmt.Println("\nRun 'narrahunt serve' to browse results.")
		return nil
	},
}

func init() {
	runCmd.Flags().IntVarP(&cycles, "cycles", "n", 5, "Maximum research cycles to run")
	runCmd.Flags().StringVar(&fixturesPath, "fixtures", "", "YAML file of source->text fixtures (offline run)")
}

// buildFetcher returns the fixture crawler when --fixtures is given,
// otherwise the live HTTP crawler.
func buildFetcher() (crawl.Fetcher, error) {
	if fixturesPath == "" {
		return crawl.NewHTTPFetcher(
			time.Duration(cfg.Crawler.TimeoutSeconds)*time.Second,
			cfg.Crawler.SearchURL,
			cfg.Crawler.UserAgent,
		), nil
	}

	data, err := os.ReadFile(fixturesPath)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	pages := make(map[string]string)
	if err := yaml.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	log.Printf("Using %d fixture pages (offline run)", len(pages))
	return crawl.NewFixtureFetcher(pages), nil
}

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "List matrix cells and their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cells, err := db.GetAllCells()
		if err != nil {
			return err
		}
		if len(cells) == 0 {
			fmt.Println("Matrix is empty. Configure entities and run 'narrahunt run'.")
			return nil
		}

		fmt.Printf("%-25s %-14s %-10s %8s  %s\n", "ENTITY", "TYPE", "STATUS", "PRIORITY", "SOURCES")
		for _, c := range cells {
			fmt.Printf("%-25s %-14s %-10s %8.3f  %d\n",
				c.Entity, c.ArtifactType, c.Status, c.Priority, len(c.Sources))
		}
		return nil
	},
}

// --- discoveries command ---

var minScore float64

var discoveriesCmd = &cobra.Command{
	Use:   "discoveries",
	Short: "List stored discoveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		discoveries, err := db.HighValue(minScore)
		if err != nil {
			return err
		}
		if len(discoveries) == 0 {
			fmt.Println("No discoveries stored yet.")
			return nil
		}

		for _, d := range discoveries {
			fmt.Printf("%.2f  %-14s %-30s (%s, %d sources)\n",
				d.Score, d.Subtype, d.Display, d.Entity, len(d.Sources))
		}
		return nil
	},
}

func init() {
	discoveriesCmd.Flags().Float64Var(&minScore, "min-score", 0, "Only show discoveries at or above this score")
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List research entities, including promoted ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entities, err := db.GetAllEntities()
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			fmt.Println("No entities recorded yet.")
			return nil
		}

		for _, e := range entities {
			line := e.Name
			if len(e.Aliases) > 0 {
				line += fmt.Sprintf(" (aka %s)", strings.Join(e.Aliases, ", "))
			}
			if e.PromotedFrom != nil {
				line += fmt.Sprintf("  [promoted while researching %s]", *e.PromotedFrom)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "narrahunt.db")
	return database.Open(dbPath)
}
