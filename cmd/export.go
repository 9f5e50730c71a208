package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/marketlens/marketlens-cli/internal/store"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export persisted sessions and parse results to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(ctx, exportLimit)
		if err != nil {
			return err
		}

		f := xlsx.NewFile()
		if err := addSessionsSheet(f, sessions); err != nil {
			return err
		}
		if err := addParsesSheet(ctx, f, st, sessions); err != nil {
			return err
		}

		if err := f.Save(exportOut); err != nil {
			return eris.Wrap(err, "export: save workbook")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d sessions to %s\n", len(sessions), exportOut)
		return nil
	},
}

func addSessionsSheet(f *xlsx.File, sessions []store.Session) error {
	sheet, err := f.AddSheet("sessions")
	if err != nil {
		return eris.Wrap(err, "export: add sessions sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"session_id", "created_at", "last_state", "transitions", "parses"} {
		header.AddCell().Value = h
	}
	for _, s := range sessions {
		row := sheet.AddRow()
		row.AddCell().Value = s.ID
		row.AddCell().Value = s.CreatedAt.Format("2006-01-02 15:04:05")
		row.AddCell().Value = string(s.LastState)
		row.AddCell().SetInt(s.Transitions)
		row.AddCell().SetInt(s.Parses)
	}
	return nil
}

func addParsesSheet(ctx context.Context, f *xlsx.File, st store.Store, sessions []store.Session) error {
	sheet, err := f.AddSheet("parse_results")
	if err != nil {
		return eris.Wrap(err, "export: add parses sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"session_id", "created_at", "data_type", "ticker", "confidence", "field", "value", "parse_time_ms"} {
		header.AddCell().Value = h
	}

	for _, s := range sessions {
		parses, err := st.ListParseResults(ctx, s.ID)
		if err != nil {
			return err
		}
		for _, p := range parses {
			for _, field := range sortedKeys(p.ParsedData) {
				row := sheet.AddRow()
				row.AddCell().Value = p.SessionID
				row.AddCell().Value = p.CreatedAt.Format("2006-01-02 15:04:05")
				row.AddCell().Value = string(p.DataType)
				row.AddCell().Value = p.Ticker
				row.AddCell().Value = string(p.Confidence)
				row.AddCell().Value = field
				row.AddCell().Value = p.ParsedData[field]
				row.AddCell().SetInt64(p.ParseTimeMS)
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "marketlens.xlsx", "output workbook path")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 200, "maximum sessions to export")
	rootCmd.AddCommand(exportCmd)
}
