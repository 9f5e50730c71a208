package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens-cli/internal/model"
	"github.com/marketlens/marketlens-cli/internal/patterns"
)

var patternsType string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the extraction rule cascades",
	Long:  "Shows each field's ordered rule cascade for a data type, including rules merged from the configured overlay file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dt, err := model.ParseDataType(patternsType)
		if err != nil {
			return err
		}

		lib := patterns.Default()
		if cfg.Parser.OverlayFile != "" {
			overlay, err := patterns.LoadOverlay(cfg.Parser.OverlayFile)
			if err != nil {
				return err
			}
			lib = lib.WithOverlay(overlay)
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"FIELD", "#", "RULE", "PATTERN"})
		for _, cascade := range lib.ForType(dt) {
			for i, rule := range cascade.Rules {
				field := ""
				if i == 0 {
					field = cascade.Field
				}
				tw.AppendRow(table.Row{field, i + 1, rule.Name, rule.Expr})
			}
			tw.AppendSeparator()
		}
		tw.Render()
		return nil
	},
}

func init() {
	patternsCmd.Flags().StringVarP(&patternsType, "type", "t", "snapshot", "data type: snapshot, support_resistance, technical")
	rootCmd.AddCommand(patternsCmd)
}
