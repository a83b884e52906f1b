package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/stacks/cmd/ingest"
	"github.com/lepinkainen/stacks/internal/config"
	"github.com/lepinkainen/stacks/internal/egress"
	"github.com/lepinkainen/stacks/internal/pagecache"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// CLI represents the complete command structure for the stacks application
type CLI struct {
	// Global flags
	LogLevel     string `name:"loglevel" help:"Log level (debug, info, warn, error)"`
	UpdateCovers bool   `help:"Re-download cover images even if they already exist"`
	NoEgress     bool   `help:"Bypass the egress pool and connect directly"`

	// Storage flags
	CatalogDB   string `help:"Path to catalog SQLite database file"`
	CacheDBFile string `help:"Path to page cache SQLite database file"`
	CacheTTL    string `help:"Page cache time-to-live duration (e.g., 720h for 30 days)"`

	Ingest  ingest.Cmd       `cmd:"" help:"Ingest books by their external record ids"`
	Author  ingest.AuthorCmd `cmd:"" help:"Ingest all books by an author"`
	Cache   CacheCmd         `cmd:"" help:"Inspect or clear the page cache"`
	Egress  EgressCmd        `cmd:"" help:"Manage the rotating egress pool"`
	Version VersionCmd       `cmd:"" help:"Print version information"`
}

// CacheCmd groups the page cache maintenance commands
type CacheCmd struct {
	Stats pagecache.StatsCmd `cmd:"" help:"Show page cache statistics"`
	Clear pagecache.ClearCmd `cmd:"" help:"Remove cached pages"`
}

// EgressCmd groups the egress pool maintenance commands
type EgressCmd struct {
	Status  egress.StatusCmd  `cmd:"" help:"Show pool identities and their health"`
	Refresh egress.RefreshCmd `cmd:"" help:"Re-harvest sources and rebuild the pool"`
}

// VersionCmd prints the binary version
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("stacks %s\n", version)
	return nil
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging()
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("stacks"),
		kong.Description("A tool to build a curated book catalog from external record pages."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)

	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	setDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()

	viper.SetConfigName("stacks")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, writing default config file...")
			if err := viper.SafeWriteConfig(); err != nil {
				slog.Error("Error writing config file", "error", err)
			}
			os.Exit(0)
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	// Initialize global config
	config.InitConfig()
}

func setDefaults() {
	viper.SetDefault("loglevel", "info")

	viper.SetDefault("catalog.dbfile", "stacks.db")

	// Cache defaults
	viper.SetDefault("cache.dbfile", "cache.db")
	viper.SetDefault("cache.ttl", "720h") // 30 days

	// Cover defaults
	viper.SetDefault("covers.dir", "covers/")
	viper.SetDefault("covers.update", false)
	viper.SetDefault("covers.rps", 2)

	// Scrape defaults
	viper.SetDefault("scrape.base_url", "https://www.goodreads.com")
	viper.SetDefault("scrape.language", "English")
	viper.SetDefault("scrape.delay_min", "1s")
	viper.SetDefault("scrape.delay_max", "1.5s")
	viper.SetDefault("scrape.burst_size", 50)
	viper.SetDefault("scrape.burst_pause_min", "5s")
	viper.SetDefault("scrape.burst_pause_max", "10s")
	viper.SetDefault("scrape.max_attempts", 3)
	viper.SetDefault("scrape.backoff_base", "1s")
	viper.SetDefault("scrape.max_body_bytes", 10*1024*1024)
	viper.SetDefault("scrape.editions_per_page", 100)
	viper.SetDefault("scrape.editions_max_pages", 0)
	viper.SetDefault("scrape.render_fallback", false)

	// Exclusion rule defaults
	viper.SetDefault("rules.max_pages", 1800)
	viper.SetDefault("rules.min_votes", 100)
	viper.SetDefault("rules.require_description", true)

	// Egress pool defaults
	viper.SetDefault("egress.enabled", true)
	viper.SetDefault("egress.dir", "egress/")
	viper.SetDefault("egress.max_failures", 3)
	viper.SetDefault("egress.cooldown", "5m")
	viper.SetDefault("egress.refresh_interval", "48h")
	viper.SetDefault("egress.validate_workers", 20)
	viper.SetDefault("egress.probe_url", "https://httpbin.org/ip")
}

func updateGlobalConfig(cli *CLI) {
	// Update config based on CLI flags
	if cli.UpdateCovers {
		config.SetUpdateCovers(true)
	}
	if cli.NoEgress {
		config.SetEgressEnabled(false)
	}

	if cli.LogLevel != "" {
		viper.Set("loglevel", cli.LogLevel)
	}
	if cli.CatalogDB != "" {
		viper.Set("catalog.dbfile", cli.CatalogDB)
	}
	if cli.CacheDBFile != "" {
		viper.Set("cache.dbfile", cli.CacheDBFile)
	}
	if cli.CacheTTL != "" {
		viper.Set("cache.ttl", cli.CacheTTL)
	}

	setLogLevel(viper.GetString("loglevel"))
}

func initLogging() {
	setLogLevel(os.Getenv("STACKS_LOG_LEVEL"))
}

// setLogLevel installs a human-readable handler at the given level.
func setLogLevel(level string) {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: parseLogLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
