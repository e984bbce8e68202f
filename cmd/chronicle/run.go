package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/worldsim/chronicle/pkg/memory"
)

func newRunCommand(configPath *string, debug *bool) *cobra.Command {
	var (
		daysDir    string
		coinSymbol string
		once       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily tick scheduler over a day-report directory",
		Long:  "Watch a directory of <date>.json world day reports and ingest the finished day on the configured cron schedule. With --once, ingest a single date and exit.",
		Example: strings.Join([]string{
			"  chronicle run --days ./days",
			"  chronicle run --days ./days --once 2026-03-14",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *debug)
			if err != nil {
				return err
			}
			defer a.close()

			feed := &dirFeed{dir: daysDir}
			bridge, err := memory.NewBridge(cmd.Context(), a.store, a.pipeline, feed, coinSymbol)
			if err != nil {
				return err
			}
			manager, err := memory.NewJobManager(a.pipeline, bridge, a.cfg.TickCron)
			if err != nil {
				return err
			}

			if once != "" {
				outcome, err := manager.TriggerTick(cmd.Context(), once)
				if err != nil {
					return err
				}
				return printJSON(outcome)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			manager.Start(ctx)
			fmt.Printf("%s scheduler running (cron %q), Ctrl+C to stop\n", appName, a.cfg.TickCron)
			<-ctx.Done()
			manager.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&daysDir, "days", "./days", "Directory of <date>.json day reports")
	cmd.Flags().StringVar(&coinSymbol, "coin", "ORIGIN", "Tracked security symbol")
	cmd.Flags().StringVar(&once, "once", "", "Ingest one date (YYYY-MM-DD) and exit")
	return cmd
}

// dirFeed serves day reports from <dir>/<date>.json files. A missing
// file means the day is not ready yet.
type dirFeed struct {
	dir string
}

func (f *dirFeed) DayReport(_ context.Context, date string) (memory.WorldDay, bool, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, date+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return memory.WorldDay{}, false, nil
		}
		return memory.WorldDay{}, false, err
	}
	var day memory.WorldDay
	if err := json.Unmarshal(data, &day); err != nil {
		return memory.WorldDay{}, false, fmt.Errorf("parse day report %s: %w", date, err)
	}
	if day.Date == "" {
		day.Date = date
	}
	return day, true, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
