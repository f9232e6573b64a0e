package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchboard/switchboard/internal/cron"
	"github.com/switchboard/switchboard/internal/dependency"
	"github.com/switchboard/switchboard/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show switchboard status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := resolvedConfigPath()

	fmt.Printf("%s switchboard Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("Listen:    %s (sockets at %s)\n", cfg.Server.Addr(), cfg.Server.SocketPath)

	storePath := cfg.Store.ResolvedPath()
	if cfg.Store.Driver == store.DriverMemory {
		storePath = "(in memory)"
	}
	fmt.Printf("Store:     %s %s\n", cfg.Store.Driver, storePath)

	st, err := dependency.NewStore(cfg)
	if err != nil {
		fmt.Printf("  (could not open store: %v)\n", err)
		return nil
	}
	defer st.Close()

	if counter, ok := st.(store.Counter); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if n, err := counter.Count(ctx); err == nil {
			fmt.Printf("Records:   %d\n", n)
		} else {
			fmt.Printf("Records:   (count failed: %v)\n", err)
		}
	}

	if days := cfg.Store.RetentionDays; days > 0 {
		fmt.Printf("Retention: %d days", days)
		if pruner, err := cron.NewService(cfg.Store.PruneSchedule, cfg.Store.Retention(), st.Prune); err == nil {
			fmt.Printf(", next prune %s\n", pruner.Status().NextRun.Format("2006-01-02 15:04"))
		} else {
			fmt.Printf(" (%v)\n", err)
		}
	} else {
		fmt.Println("Retention: keep forever")
	}

	if idle := cfg.Socket.IdleTimeout(); idle > 0 {
		fmt.Printf("Idle:      close after %s\n", idle)
	} else {
		fmt.Println("Idle:      never closed")
	}
	return nil
}
