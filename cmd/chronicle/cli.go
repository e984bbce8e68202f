package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/worldsim/chronicle/pkg/memory"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var (
		showVersion bool
		configPath  string
		debug       bool
	)

	root := &cobra.Command{
		Use:   "chronicle",
		Short: "Simulation memory: time-indexed SQLite store, tick pipeline, and retrieval",
		Long: strings.TrimSpace(`chronicle records simulated days as entities, events, and searchable
text chunks, and answers questions about the world from that memory.

Use CLI commands to ingest ticks, backfill history from CSV, run the
daily scheduler, retrieve context packs, and chat with the narrator.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVar(&configPath, "config", "./chronicle.json", "Path to JSON config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newTickCommand(&configPath, &debug))
	root.AddCommand(newRunCommand(&configPath, &debug))
	root.AddCommand(newBackfillCommand(&configPath, &debug))
	root.AddCommand(newSeedCommand(&configPath, &debug))
	root.AddCommand(newRetrieveCommand(&configPath, &debug))
	root.AddCommand(newAskCommand(&configPath, &debug))
	root.AddCommand(newStatusCommand(&configPath, &debug))
	root.AddCommand(newVersionCommand())

	return root
}

func newTickCommand(configPath *string, debug *bool) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "tick",
		Short:   "Run one tick from a day-report JSON file",
		Long:    "Ingest one simulation day: append events, write states, chunk summaries, and embed.",
		Example: "  chronicle tick --file day-2026-03-14.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var req memory.TickRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse tick request: %w", err)
			}

			a, err := openApp(*configPath, *debug)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.pipeline.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Tick request JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newBackfillCommand(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "backfill <csv>",
		Short:   "Backfill memory from a CSV of per-day metrics",
		Long:    "Replay history from a CSV with date,entity_id,metric,value columns (optional ts, actor_id, type). Rows are grouped into one tick per day and run in date order.",
		Args:    cobra.ExactArgs(1),
		Example: "  chronicle backfill history.csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *debug)
			if err != nil {
				return err
			}
			defer a.close()

			requests, err := parseBackfillCSV(args[0])
			if err != nil {
				return err
			}
			for _, req := range requests {
				if _, err := a.pipeline.Run(cmd.Context(), req); err != nil {
					return fmt.Errorf("backfill tick %s: %w", req.Date, err)
				}
			}
			fmt.Printf("Backfilled %d tick(s) from %s.\n", len(requests), args[0])
			return nil
		},
	}
}

func newSeedCommand(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "seed",
		Short:   "Seed the store with demo entities and one tick",
		Example: "  chronicle seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *debug)
			if err != nil {
				return err
			}
			defer a.close()
			return runSeed(cmd.Context(), a)
		},
	}
}

func newRetrieveCommand(configPath *string, debug *bool) *cobra.Command {
	var (
		question  string
		entities  []string
		keywords  []string
		maxTokens int
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Build a context pack for a question",
		Example: strings.Join([]string{
			"  chronicle retrieve -q \"How is the treasury doing?\"",
			"  chronicle retrieve -q \"wallet activity\" -e person:avery_quinn:1a2b3c4d5e",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *debug)
			if err != nil {
				return err
			}
			defer a.close()

			pack, err := a.retriever.Retrieve(cmd.Context(), memory.RetrieveRequest{
				Question:  question,
				EntityIDs: entities,
				Keywords:  keywords,
				MaxTokens: maxTokens,
			})
			if err != nil {
				return err
			}
			return printJSON(pack)
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to retrieve context for")
	cmd.Flags().StringSliceVarP(&entities, "entity", "e", nil, "Entity id scope (repeatable)")
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "Explicit keywords (repeatable)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget override for the pack")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newStatusCommand(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show store counts and last tick time",
		Example: "  chronicle status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *debug)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := memory.BuildStatus(cmd.Context(), a.store, a.cfg.VectorDim)
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  chronicle version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func runSeed(ctx context.Context, a *app) error {
	averyID := memory.PersonID("Avery Quinn")
	morganID := memory.PersonID("Morgan Hale")
	walletID := memory.WalletID("avery_quinn", "origin")

	seedEntities := []memory.EntityUpsert{
		{ID: averyID, Kind: "person", Name: "Avery Quinn", Meta: map[string]any{"role": "lead"}},
		{ID: morganID, Kind: "person", Name: "Morgan Hale", Meta: map[string]any{"role": "lead"}},
		{ID: walletID, Kind: "wallet", Name: "Origin Wallet", Meta: map[string]any{"currency": "ORIGIN"}},
	}
	for _, e := range seedEntities {
		if _, err := a.store.UpsertEntity(ctx, e); err != nil {
			return fmt.Errorf("seed entity %s: %w", e.Name, err)
		}
	}

	today := nowUTC().Format("2006-01-02")
	req := memory.TickRequest{
		Date: today,
		Entities: []memory.EntityState{
			{Date: today, EntityID: averyID, State: map[string]float64{"cash_usd": 120000, "origin_holdings": 100000}},
			{Date: today, EntityID: morganID, State: map[string]float64{"cash_usd": 95000, "origin_holdings": 100000}},
			{Date: today, EntityID: walletID, State: map[string]float64{"units": 200000, "price_usd": 0.27}},
		},
		Global: memory.DailyState{
			Date:   today,
			Global: map[string]any{"origin_price_usd": 0.27, "narrative": "Calm markets"},
		},
		Events: []memory.EventInput{
			{
				TS:      nowUTC(),
				ActorID: walletID,
				Type:    "txn",
				Payload: map[string]any{"action": "buy", "amount": 5000},
				Links:   []string{averyID, morganID, walletID},
			},
		},
	}
	if _, err := a.pipeline.Run(ctx, req); err != nil {
		return err
	}
	fmt.Println("Seeded memory store with sample entities, events, and states.")
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
