package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens-cli/internal/model"
)

var (
	runTicker  string
	runAll     bool
	runJSON    bool
	runNoStore bool
)

var runCmd = &cobra.Command{
	Use:   "run [snapshot|support_resistance|technical]",
	Short: "Run a full analysis cycle against the model API",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initRunner(ctx, !runNoStore)
		if err != nil {
			return err
		}
		defer env.Close()

		buttons := []model.ButtonType{model.ButtonSnapshot}
		if len(args) == 1 {
			dt, err := model.ParseDataType(args[0])
			if err != nil {
				return err
			}
			buttons = []model.ButtonType{model.ButtonType(dt)}
		}
		if runAll {
			buttons = []model.ButtonType{
				model.ButtonSnapshot,
				model.ButtonSupportResistance,
				model.ButtonTechnical,
			}
		}

		results, err := env.runner.ExecuteAll(ctx, buttons, runTicker, 2)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var failed int
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Fprintf(out, "%s: cycle ended in %s: %v\n", res.Button, res.FinalState, res.Err)
				continue
			}
			fmt.Fprintf(out, "session %s  %s  %s\n", res.SessionID, res.Button, res.Ticker)
			if runJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res.Parse); err != nil {
					return err
				}
			} else {
				renderParseResult(out, res.Parse)
			}
			fmt.Fprintln(out)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cycles failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runTicker, "ticker", "", "ticker symbol (default: last mentioned)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run all three analysis types")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit parse results as JSON")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "skip audit persistence")
	rootCmd.AddCommand(runCmd)
}
