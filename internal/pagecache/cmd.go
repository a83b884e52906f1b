package pagecache

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/viper"

	"github.com/lepinkainen/stacks/internal/cmdutil"
)

// ClearCmd represents the cache clear subcommand.
type ClearCmd struct {
	Kind string `help:"Only clear pages of this kind: book, editions, author" default:""`
}

func (c *ClearCmd) Run() error {
	cacheDB := viper.GetString("cache.dbfile")

	slog.Info("Clearing page cache", "kind", c.Kind, "database", cacheDB)

	if c.Kind != "" {
		validKinds := map[string]bool{
			"book":     true,
			"editions": true,
			"author":   true,
		}
		if !validKinds[c.Kind] {
			return fmt.Errorf("invalid page kind '%s'; valid kinds are: book, editions, author", c.Kind)
		}
	}

	cache, err := GetGlobal()
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	rowsDeleted, err := cache.Clear(c.Kind)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	slog.Info("Page cache cleared", "kind", c.Kind, "rows_deleted", rowsDeleted)
	return nil
}

// StatsCmd represents the cache stats subcommand.
type StatsCmd struct{}

func (s *StatsCmd) Run() error {
	cache, err := GetGlobal()
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	stats, err := cache.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	if len(stats) == 0 {
		fmt.Println("page cache is empty")
		return nil
	}

	rows := make([][]string, 0, len(stats))
	for _, kc := range stats {
		rows = append(rows, []string{kc.Kind, strconv.FormatInt(kc.Count, 10)})
	}
	fmt.Println(cmdutil.RenderTable([]string{"KIND", "PAGES"}, rows))
	return nil
}
