package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/client"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled sends and reminders",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending scheduled sends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		tasks, err := newClient().Schedule(ctx)
		if err != nil {
			return err
		}
		return output(tasks, func() {
			w := newTable()
			fmt.Fprintln(w, "ID\tCONNECTION\tRECIPIENT\tFIRE AT\tRECURRING\tBODY")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
					t.ID, t.ConnectionID, t.Recipient, t.FireAt.Local().Format("2006-01-02 15:04"), t.Recurring, truncate(t.Body, 50))
			}
			_ = w.Flush()
		})
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <id> <number> <message...>",
	Short: "Schedule a one-shot or monthly send",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		recurring, _ := cmd.Flags().GetBool("recurring")
		fireAt, err := parseFireAt(at)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		task, err := newClient().AddSchedule(ctx, client.ScheduleRequest{
			ConnectionID: args[0],
			Number:       args[1],
			Message:      strings.Join(args[2:], " "),
			FireAt:       fireAt,
			Recurring:    recurring,
		})
		if err != nil {
			return err
		}
		return output(task, func() {
			fmt.Printf("scheduled %s for %s\n", task.ID, task.FireAt.Local().Format("2006-01-02 15:04"))
		})
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:     "delete <task-id>",
	Aliases: []string{"rm"},
	Short:   "Cancel a scheduled send",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := newClient().DeleteSchedule(ctx, args[0]); err != nil {
			return err
		}
		return output(map[string]string{"id": args[0], "status": "deleted"}, func() {
			fmt.Printf("%s deleted\n", args[0])
		})
	},
}

var scheduleSyncCmd = &cobra.Command{
	Use:   "sync <id>",
	Short: "Import reminders from a published sheet or a local CSV",
	Long: `Import reminders from a published sheet or a local CSV.

Rows are "name,number,date". Without --url or --csv the daemon uses its
configured source.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		csvPath, _ := cmd.Flags().GetString("csv")

		req := client.SyncRequest{ConnectionID: args[0], URL: url}
		if csvPath != "" {
			rows, err := readRows(csvPath)
			if err != nil {
				return err
			}
			req.Rows = rows
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		res, err := newClient().SyncSchedule(ctx, req)
		if err != nil {
			return err
		}
		return output(res, func() {
			fmt.Printf("created %d, skipped %d\n", res.Created, res.Skipped)
			for _, w := range res.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
		})
	},
}

var fireAtLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

func parseFireAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("--at is required")
	}
	for _, layout := range fireAtLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse --at %q: use YYYY-MM-DD HH:MM or RFC 3339", s)
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rows: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse rows: %w", err)
	}
	return rows, nil
}

func init() {
	scheduleAddCmd.Flags().String("at", "", "local fire time, YYYY-MM-DD HH:MM or RFC 3339")
	scheduleAddCmd.Flags().Bool("recurring", false, "repeat monthly on the same day and time")

	scheduleSyncCmd.Flags().String("url", "", "published CSV URL")
	scheduleSyncCmd.Flags().String("csv", "", "local CSV file")

	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
	scheduleCmd.AddCommand(scheduleSyncCmd)

	rootCmd.AddCommand(scheduleCmd)
}
