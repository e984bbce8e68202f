package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newAskCommand(configPath *string, debug *bool) *cobra.Command {
	var (
		mode     string
		entities []string
		question string
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Chat with the narrator over stored memory",
		Long:  "Ask one-shot questions with --question, or start an interactive session. Modes: simulation, status, narrative_long.",
		Example: strings.Join([]string{
			"  chronicle ask",
			"  chronicle ask --mode status --question \"What changed yesterday?\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *debug)
			if err != nil {
				return err
			}
			defer a.close()

			if strings.TrimSpace(question) != "" {
				return askOnce(cmd.Context(), a, question, entities, mode)
			}
			fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", appName)
			askInteractive(cmd.Context(), a, entities, mode)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "status", "Narrator mode")
	cmd.Flags().StringSliceVarP(&entities, "entity", "e", nil, "Entity id scope (repeatable)")
	cmd.Flags().StringVarP(&question, "question", "q", "", "One-shot question")
	return cmd
}

func askOnce(ctx context.Context, a *app, question string, entities []string, mode string) error {
	response, err := a.narrator.Reason(ctx, question, entities, nil, mode)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s %s\n", appName, response.Narrative)
	return nil
}

func askInteractive(ctx context.Context, a *app, entities []string, mode string) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".chronicle_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		response, err := a.narrator.Reason(ctx, input, entities, nil, mode)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s %s\n\n", appName, response.Narrative)
	}
}
