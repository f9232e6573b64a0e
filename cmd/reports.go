package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchboard/switchboard/internal/cron"
	"github.com/switchboard/switchboard/internal/dependency"
	"github.com/switchboard/switchboard/internal/schema"
	"github.com/switchboard/switchboard/internal/shared/stringutils"
)

const reportsTimeout = 30 * time.Second

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect and manage stored reports",
}

func init() {
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsGetCmd)
	reportsCmd.AddCommand(reportsAddCmd)
	reportsCmd.AddCommand(reportsPruneCmd)
}

// withStore opens the configured store for one command.
func withStore(fn func(ctx context.Context, st schema.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := dependency.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), reportsTimeout)
	defer cancel()
	return fn(ctx, st)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ---- list ------------------------------------------------------------------

var (
	reportsListQuery  []string
	reportsListFields []string
	reportsListJSON   bool
)

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports, newest first",
	RunE: func(_ *cobra.Command, _ []string) error {
		query, err := parseQuery(reportsListQuery)
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st schema.Store) error {
			recs, err := st.List(ctx, query, reportsListFields)
			if err != nil {
				return err
			}
			if reportsListJSON || len(reportsListFields) > 0 {
				return printJSON(recs)
			}
			if len(recs) == 0 {
				fmt.Println("No reports.")
				return nil
			}
			fmt.Printf("%-36s %-20s %-40s\n", "ID", "Added", "Title")
			fmt.Println(strings.Repeat("-", 98))
			for _, r := range recs {
				fmt.Printf("%-36s %-20s %-40s\n", r.ID(), formatAdded(r["added"]), stringutils.Truncate(fmt.Sprint(valueOr(r["title"], "")), 40))
			}
			return nil
		})
	},
}

func init() {
	reportsListCmd.Flags().StringArrayVarP(&reportsListQuery, "query", "q", nil, "Filter as key=value (repeatable)")
	reportsListCmd.Flags().StringSliceVarP(&reportsListFields, "fields", "f", nil, "Fields to return (default: base fields)")
	reportsListCmd.Flags().BoolVar(&reportsListJSON, "json", false, "Print JSON")
}

// ---- get -------------------------------------------------------------------

var reportsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one report",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st schema.Store) error {
			rec, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("report %s not found", args[0])
			}
			return printJSON(rec)
		})
	},
}

// ---- add -------------------------------------------------------------------

var reportsAddCmd = &cobra.Command{
	Use:   "add [json]",
	Short: "Store a report from a JSON argument or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var raw []byte
		if len(args) == 1 {
			raw = []byte(args[0])
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			raw = data
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("report must be a JSON object: %w", err)
		}

		return withStore(func(ctx context.Context, st schema.Store) error {
			res, err := st.Add(ctx, body)
			if err != nil {
				return err
			}
			if !res.OK() {
				return errors.New(res.Error)
			}
			fmt.Printf("✓ Stored report %s\n", res.ID)
			return nil
		})
	},
}

// ---- prune -----------------------------------------------------------------

var reportsPruneDays int

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete reports older than the retention window",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		days := cfg.Store.RetentionDays
		if reportsPruneDays > 0 {
			days = reportsPruneDays
		}
		if days <= 0 {
			return errors.New("no retention configured; pass --days")
		}

		return withStore(func(ctx context.Context, st schema.Store) error {
			pruner, err := cron.NewService(cfg.Store.PruneSchedule, time.Duration(days)*24*time.Hour, st.Prune)
			if err != nil {
				return err
			}
			n, err := pruner.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Removed %d report(s) older than %d days\n", n, days)
			return nil
		})
	},
}

func init() {
	reportsPruneCmd.Flags().IntVarP(&reportsPruneDays, "days", "d", 0, "Retention in days (overrides store.retentionDays)")
}

// ---- helpers ---------------------------------------------------------------

// parseQuery turns key=value pairs into a store query. Values that parse as
// JSON (numbers, booleans, null) keep that type; everything else is a string.
func parseQuery(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	q := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query %q: want key=value", p)
		}
		var typed any
		if err := json.Unmarshal([]byte(v), &typed); err == nil {
			switch typed.(type) {
			case float64, bool, nil:
				q[k] = typed
				continue
			}
		}
		q[k] = v
	}
	return q, nil
}

func formatAdded(v any) string {
	ms, ok := v.(float64)
	if !ok {
		return ""
	}
	return time.UnixMilli(int64(ms)).Format("2006-01-02 15:04:05")
}

func valueOr(v, def any) any {
	if v == nil {
		return def
	}
	return v
}
