package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted workflow sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(ctx, sessionsLimit)
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"SESSION", "CREATED", "LAST STATE", "TRANSITIONS", "PARSES"})
		for _, s := range sessions {
			tw.AppendRow(table.Row{
				s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"),
				s.LastState, s.Transitions, s.Parses,
			})
		}
		tw.Render()
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the transition history and parses for one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return eris.Errorf("session %s not found", args[0])
		}

		recs, err := st.ListTransitions(ctx, sess.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"TIME", "EVENT", "FROM", "TO", "OK", "ERROR"})
		for _, r := range recs {
			tw.AppendRow(table.Row{
				r.Timestamp.Format("15:04:05.000"), r.Event, r.From, r.To, r.Success, r.Error,
			})
		}
		tw.Render()

		parses, err := st.ListParseResults(ctx, sess.ID)
		if err != nil {
			return err
		}
		for _, p := range parses {
			fmt.Fprintf(out, "\n%s  %s  %s  confidence=%s  fields=%d  warnings=%d\n",
				p.CreatedAt.Format("15:04:05"), p.DataType, p.Ticker,
				p.Confidence, len(p.ParsedData), len(p.Warnings))
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "maximum sessions to list")
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
