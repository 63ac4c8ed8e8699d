package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook [url]",
	Short: "Show or set the webhook that receives event notifications",
	Long: `Show or set the webhook that receives event notifications.

With a URL the target is replaced; an empty string ("") clears it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		c := newClient()
		if len(args) == 0 {
			wh, err := c.Webhook(ctx)
			if err != nil {
				return err
			}
			return output(wh, func() {
				fmt.Printf("URL:    %s\n", orDash(wh.URL))
				fmt.Printf("Secret: %v\n", wh.HasSecret)
			})
		}

		secret, _ := cmd.Flags().GetString("secret")
		wh, err := c.SetWebhook(ctx, args[0], secret)
		if err != nil {
			return err
		}
		return output(wh, func() {
			fmt.Printf("webhook set to %s\n", orDash(wh.URL))
		})
	},
}

var autoRepliesCmd = &cobra.Command{
	Use:     "auto-replies",
	Aliases: []string{"replies"},
	Short:   "Manage keyword auto-replies",
}

var autoRepliesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keyword rules in match order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		rules, err := newClient().AutoReplies(ctx)
		if err != nil {
			return err
		}
		return output(rules, func() {
			w := newTable()
			fmt.Fprintln(w, "ID\tKEYWORD\tRESPONSE")
			for _, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Keyword, truncate(r.Response, 60))
			}
			_ = w.Flush()
		})
	},
}

var autoRepliesAddCmd = &cobra.Command{
	Use:   "add <keyword> <response...>",
	Short: "Add a keyword rule",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		rule, err := newClient().AddAutoReply(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return output(rule, func() {
			fmt.Printf("rule %d added\n", rule.ID)
		})
	},
}

var autoRepliesDeleteCmd = &cobra.Command{
	Use:     "delete <rule-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a keyword rule",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rule id %q", args[0])
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := newClient().DeleteAutoReply(ctx, id); err != nil {
			return err
		}
		return output(map[string]any{"id": id, "status": "deleted"}, func() {
			fmt.Printf("rule %d deleted\n", id)
		})
	},
}

func init() {
	webhookCmd.Flags().String("secret", "", "HMAC secret that signs deliveries (X-Webhook-Signature)")

	autoRepliesCmd.AddCommand(autoRepliesListCmd)
	autoRepliesCmd.AddCommand(autoRepliesAddCmd)
	autoRepliesCmd.AddCommand(autoRepliesDeleteCmd)

	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(autoRepliesCmd)
}
