package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/WebDbChat/internal/chat"
	"github.com/JonMunkholm/WebDbChat/internal/query"
	"github.com/JonMunkholm/WebDbChat/internal/schema"
)

// failedTurn carries the user-safe message of an unsuccessful turn.
type failedTurn string

func (f failedTurn) Error() string { return string(f) }

func askCmd() *cobra.Command {
	var (
		connection string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "ask --connection NAME QUESTION...",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			cfg, err := a.registry.Lookup(connection)
			if err != nil {
				return err
			}
			svc, err := a.chatService()
			if err != nil {
				return err
			}

			res := svc.Handle(cmd.Context(), chat.Turn{
				ConnectionID: connection,
				Connection:   cfg,
				Question:     strings.Join(args, " "),
			})
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if err := printResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return failedTurn(res.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&connection, "connection", "c", "default", "registered connection name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func schemaCmd() *cobra.Command {
	var (
		connection string
		refresh    bool
	)
	cmd := &cobra.Command{
		Use:   "schema --connection NAME",
		Short: "Print the schema text sent to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			cfg, err := a.registry.Lookup(connection)
			if err != nil {
				return err
			}
			fetch := a.resolver.Resolve
			if refresh {
				fetch = a.resolver.Refresh
			}
			snap, err := fetch(cmd.Context(), connection, cfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), schema.Format(snap))
			return err
		},
	}
	cmd.Flags().StringVarP(&connection, "connection", "c", "default", "registered connection name")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the schema cache")
	return cmd
}

// printResult renders a chat result for a terminal: message, SQL, then the rows.
// The caller reports failures, so an unsuccessful result prints nothing here.
func printResult(w io.Writer, res chat.Result) error {
	if !res.Success {
		return nil
	}
	if _, err := fmt.Fprintln(w, res.Message); err != nil {
		return err
	}
	if res.SQL != "" {
		if _, err := fmt.Fprintf(w, "\n%s\n", res.SQL); err != nil {
			return err
		}
	}
	if res.Result == nil || len(res.Result.Columns) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return writeTable(w, *res.Result)
}

func writeTable(w io.Writer, res query.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = strings.ReplaceAll(v.String(), "\n", " ")
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
