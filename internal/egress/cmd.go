package egress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/lepinkainen/stacks/internal/cmdutil"
)

// ConfigFromViper builds the pool configuration from the egress.* keys.
func ConfigFromViper() Config {
	cfg := DefaultConfig(viper.GetString("egress.dir"))
	if v := viper.GetInt("egress.max_failures"); v > 0 {
		cfg.MaxFailures = v
	}
	if v := viper.GetDuration("egress.cooldown"); v > 0 {
		cfg.Cooldown = v
	}
	if v := viper.GetDuration("egress.refresh_interval"); v > 0 {
		cfg.RefreshInterval = v
	}
	if v := viper.GetInt("egress.validate_workers"); v > 0 {
		cfg.ValidateWorkers = v
	}
	if v := viper.GetString("egress.probe_url"); v != "" {
		cfg.ProbeURL = v
	}
	return cfg
}

// StatusCmd represents the egress status subcommand.
type StatusCmd struct{}

func (s *StatusCmd) Run() error {
	pool, err := Open(context.Background(), ConfigFromViper())
	if err != nil {
		return fmt.Errorf("failed to open egress pool: %w", err)
	}

	status := pool.Status()
	if len(status) == 0 {
		fmt.Println("egress pool is empty, fetches connect directly")
		return nil
	}

	rows := make([][]string, 0, len(status))
	for _, st := range status {
		lastUsed := "never"
		if !st.LastUsed.IsZero() {
			lastUsed = st.LastUsed.Format(time.RFC3339)
		}
		good := ""
		if st.LastGood {
			good = "*"
		}
		rows = append(rows, []string{st.Addr, strconv.Itoa(st.Failures), lastUsed, good})
	}
	fmt.Println(cmdutil.RenderTable([]string{"ADDRESS", "FAILURES", "LAST USED", "GOOD"}, rows))
	return nil
}

// RefreshCmd represents the egress refresh subcommand.
type RefreshCmd struct{}

func (r *RefreshCmd) Run() error {
	ctx := context.Background()

	pool, err := Open(ctx, ConfigFromViper())
	if err != nil {
		return fmt.Errorf("failed to open egress pool: %w", err)
	}
	if err := pool.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh egress pool: %w", err)
	}

	fmt.Printf("egress pool refreshed, %d identities\n", pool.Size())
	return nil
}
