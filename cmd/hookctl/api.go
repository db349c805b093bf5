package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/leadforge/leadhooks/internal/webhooks"
	"github.com/leadforge/leadhooks/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// apiClient returns an SDK client for the configured server and token.
func apiClient() (*client.Client, error) {
	return client.New(serverURL, client.WithBearerToken(viper.GetString("token")))
}

// ── dispatch ─────────────────────────────────────────────────────────────────

var dispatchData string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <event-type>",
	Short: "Submit a domain event for fan-out (requires a service token)",
	Long: `Dispatch posts an event to leadhooksd, which delivers it to every active
subscription for that event type in the background.

  hookctl dispatch lead.created --data '{"leadId":"L1"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, err := webhooks.ParseEventType(args[0])
		if err != nil {
			return err
		}
		if !json.Valid([]byte(dispatchData)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		c, err := apiClient()
		if err != nil {
			return err
		}
		if err := c.Dispatch(cmd.Context(), client.EventType(et), json.RawMessage(dispatchData)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "accepted %s\n", et)
		return nil
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchData, "data", "{}", "Event payload as JSON")
}

// ── test ─────────────────────────────────────────────────────────────────────

var testCmd = &cobra.Command{
	Use:   "test <subscription-id>",
	Short: "Send one test delivery to a subscription and show the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid subscription id: %w", err)
		}
		c, err := apiClient()
		if err != nil {
			return err
		}
		res, err := c.TestSubscription(cmd.Context(), id)
		if err != nil {
			return err
		}
		d := res.Delivery
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Success:       %t\n", d.Success)
		fmt.Fprintf(out, "Status code:   %d\n", d.StatusCode)
		fmt.Fprintf(out, "Response time: %dms\n", d.DurationMs)
		if d.ErrorMessage != "" {
			fmt.Fprintf(out, "Error:         %s\n", d.ErrorMessage)
		}
		return nil
	},
}

// ── deliveries ───────────────────────────────────────────────────────────────

var deliveriesLimit int

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries <subscription-id>",
	Short: "List recent delivery attempts for a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid subscription id: %w", err)
		}
		c, err := apiClient()
		if err != nil {
			return err
		}
		recs, err := c.ListDeliveries(cmd.Context(), id, deliveriesLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DELIVERED\tEVENT\tTYPE\tATTEMPT\tSTATUS\tOK\tERROR")
		for _, d := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
				d.DeliveredAt.Format(time.RFC3339), d.EventID, d.EventType, d.Attempt, d.StatusCode, d.Success, d.ErrorMessage)
		}
		return w.Flush()
	},
}

func init() {
	deliveriesCmd.Flags().IntVar(&deliveriesLimit, "limit", 20, "Maximum number of attempts to show")
}

// ── subscribe / list ─────────────────────────────────────────────────────────

var subscribeEvents []string

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <url>",
	Short: "Register a webhook endpoint and print its signing secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events := make([]client.EventType, 0, len(subscribeEvents))
		for _, s := range subscribeEvents {
			et, err := webhooks.ParseEventType(s)
			if err != nil {
				return err
			}
			events = append(events, client.EventType(et))
		}
		c, err := apiClient()
		if err != nil {
			return err
		}
		created, err := c.CreateSubscription(cmd.Context(), args[0], events...)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:     %s\n", created.Subscription.ID)
		fmt.Fprintf(out, "Secret: %s\n", created.Secret)
		fmt.Fprintln(out, "Store the secret securely. It will not be shown again.")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the organization's webhook subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		subs, err := c.ListSubscriptions(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTIVE\tURL\tEVENTS")
		for _, s := range subs {
			names := make([]string, len(s.Events))
			for i, e := range s.Events {
				names[i] = e.String()
			}
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", s.ID, s.Active, s.URL, strings.Join(names, ","))
		}
		return w.Flush()
	},
}

func init() {
	subscribeCmd.Flags().StringSliceVar(&subscribeEvents, "events", nil, "Event types to subscribe to (comma-separated)")
	_ = subscribeCmd.MarkFlagRequired("events")
}
