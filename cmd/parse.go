package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens-cli/internal/model"
)

var (
	parseType   string
	parseFile   string
	parseTicker string
	parseJSON   bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract structured fields from response text",
	Long:  "Reads free-form analysis text from a file or stdin and extracts the fields for the given data type, with per-field validation and a confidence score. Works offline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("parse"); err != nil {
			return err
		}

		dt, err := model.ParseDataType(parseType)
		if err != nil {
			return err
		}

		input, err := readInput(parseFile)
		if err != nil {
			return err
		}

		p, err := initParser(nil)
		if err != nil {
			return err
		}

		res, err := p.ParseAny(input, dt, model.NormalizeTicker(parseTicker))
		if err != nil {
			return err
		}

		if parseJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		renderParseResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseType, "type", "t", "snapshot", "data type: snapshot, support_resistance, technical")
	parseCmd.Flags().StringVarP(&parseFile, "file", "f", "", "input file (default: stdin)")
	parseCmd.Flags().StringVar(&parseTicker, "ticker", "", "ticker symbol for context")
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(parseCmd)
}

func readInput(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", eris.Wrap(err, "read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "read input file")
	}
	return string(data), nil
}

func renderParseResult(w io.Writer, res *model.ParseResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"FIELD", "VALUE"})

	fields := orderedFields(res)
	for _, f := range fields {
		tw.AppendRow(table.Row{f, res.ParsedData[f]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	tw.Render()

	fmt.Fprintf(w, "\nconfidence: %s  (%d matched, %d failed, %d ms)\n",
		res.Confidence, len(res.MatchedPatterns), len(res.FailedPatterns), res.ParseTimeMS)
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

// orderedFields lists matched fields in the canonical order for the
// data type, with any extras (overlay-defined fields) sorted after.
func orderedFields(res *model.ParseResult) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range model.FieldsFor(res.DataType) {
		if _, ok := res.ParsedData[f]; ok {
			out = append(out, f)
			seen[f] = true
		}
	}
	var extras []string
	for f := range res.ParsedData {
		if !seen[f] && !strings.HasPrefix(f, "_") {
			extras = append(extras, f)
		}
	}
	sort.Strings(extras)
	return append(out, extras...)
}
