package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/broadcast"
	"github.com/matheus3301/wpphub/internal/client"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <id> <number> [message...]",
	Short: "Send a text or a file from a connection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath, _ := cmd.Flags().GetString("file")
		message := strings.Join(args[2:], " ")
		if message == "" && filePath == "" {
			return fmt.Errorf("nothing to send: give a message or --file")
		}

		var file *client.File
		if filePath != "" {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("read attachment: %w", err)
			}
			file = &client.File{Name: filepath.Base(filePath), Data: data}
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		rec, err := newClient().Send(ctx, args[0], args[1], message, file)
		if err != nil {
			return err
		}
		return output(rec, func() {
			fmt.Printf("sent %s to %s (%s)\n", rec.MessageType, rec.Counterparty, orDash(rec.ExternalID))
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <id>",
	Short: "List the message ledger of a connection, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, _ := cmd.Flags().GetString("direction")
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")
		before, _ := cmd.Flags().GetInt64("before")

		ctx, cancel := requestContext(cmd)
		defer cancel()

		msgs, err := newClient().Messages(ctx, args[0], client.MessageQuery{
			Direction: store.Direction(direction),
			Query:     query,
			Limit:     limit,
			Before:    before,
		})
		if err != nil {
			return err
		}
		return output(msgs, func() {
			w := newTable()
			fmt.Fprintln(w, "ID\tTIME\tDIR\tCOUNTERPARTY\tTYPE\tBODY")
			for _, m := range msgs {
				who := m.Counterparty
				if m.DisplayName != "" {
					who += " (" + m.DisplayName + ")"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, formatMs(m.Timestamp), m.Direction, who, m.MessageType, truncate(m.Body, 60))
			}
			_ = w.Flush()
		})
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <id>",
	Short: "Start a paced broadcast job",
	Long: `Start a paced broadcast job.

Recipients come from --to (sharing --message) or from --csv, a file of
"number,message" rows where an empty message falls back to --message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetStringSlice("to")
		csvPath, _ := cmd.Flags().GetString("csv")
		message, _ := cmd.Flags().GetString("message")
		delay, _ := cmd.Flags().GetDuration("delay")
		mode, _ := cmd.Flags().GetString("mode")

		req := client.BroadcastRequest{
			Numbers: to,
			Message: message,
			DelayMs: delay.Milliseconds(),
			Mode:    mode,
		}
		if csvPath != "" {
			recipients, err := readRecipients(csvPath)
			if err != nil {
				return err
			}
			req.Messages = recipients
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		job, err := newClient().Broadcast(ctx, args[0], req)
		if err != nil {
			return err
		}
		return output(job, func() {
			fmt.Printf("broadcast %s started: %d recipients, mode %s\n", job.ID, job.Total, job.Mode)
		})
	},
}

var broadcastsCmd = &cobra.Command{
	Use:   "broadcasts [job-id]",
	Short: "List recent broadcast jobs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := requestContext(cmd)
		defer cancel()

		var jobs []store.BroadcastJob
		if len(args) == 1 {
			job, err := newClient().BroadcastJob(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(job)
			}
			jobs = []store.BroadcastJob{*job}
		} else {
			var err error
			if jobs, err = newClient().Broadcasts(ctx, limit); err != nil {
				return err
			}
		}
		return output(jobs, func() {
			w := newTable()
			fmt.Fprintln(w, "JOB\tCONNECTION\tSTATUS\tMODE\tSENT\tFAILED\tTOTAL\tSTARTED\tDURATION")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					j.ID, j.ConnectionID, j.Status, j.Mode, j.Sent, j.Failed, j.Total,
					j.StartTime.Local().Format("2006-01-02 15:04:05"), jobDuration(j))
			}
			_ = w.Flush()
		})
	},
}

func readRecipients(path string) ([]broadcast.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipients: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse recipients: %w", err)
	}
	var out []broadcast.Recipient
	for _, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec := broadcast.Recipient{Number: strings.TrimSpace(row[0])}
		if len(row) > 1 {
			rec.Message = row[1]
		}
		out = append(out, rec)
	}
	return out, nil
}

func jobDuration(j store.BroadcastJob) string {
	if j.EndTime == nil {
		return "running"
	}
	return j.EndTime.Sub(j.StartTime).Round(time.Second).String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func init() {
	sendCmd.Flags().StringP("file", "f", "", "attach a file; the message becomes its caption")

	messagesCmd.Flags().String("direction", "", "incoming or outgoing")
	messagesCmd.Flags().StringP("query", "q", "", "substring to match in body or counterparty")
	messagesCmd.Flags().IntP("limit", "n", 50, "maximum number of messages")
	messagesCmd.Flags().Int64("before", 0, "only messages older than this unix-ms timestamp")

	broadcastCmd.Flags().StringSlice("to", nil, "recipient numbers")
	broadcastCmd.Flags().String("csv", "", "CSV file of number,message rows")
	broadcastCmd.Flags().StringP("message", "m", "", "message shared by recipients without their own")
	broadcastCmd.Flags().Duration("delay", 0, "pause between recipients in fixed mode (daemon default when zero)")
	broadcastCmd.Flags().String("mode", string(broadcast.ModeFixed), "pacing mode: fixed or slow")

	broadcastsCmd.Flags().IntP("limit", "n", 20, "maximum number of jobs")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(broadcastsCmd)
}
