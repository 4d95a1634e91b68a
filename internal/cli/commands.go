package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"sales-dialer/internal/calls"
	"sales-dialer/internal/leads"
	"sales-dialer/internal/phone"
	"sales-dialer/internal/reporting"
)

// Store is what the operator commands read. cmd/dialerctl backs it with
// Postgres; tests use the in-memory repos.
type Store struct {
	Leads  LeadReader
	Calls  reporting.CallSource
	Events reporting.EventSource
}

type LeadReader interface {
	GetCampaign(ctx context.Context, campaignID string) (leads.Campaign, error)
	ListActionable(ctx context.Context, campaignID string, limit int) ([]leads.Lead, error)
	ListCallbacks(ctx context.Context, agentID string, offset, limit int) ([]leads.Lead, error)
}

// Opener connects to the store lazily so commands that need no database
// (normalize) run without one.
type Opener func(ctx context.Context) (Store, func(), error)

type options struct {
	countryCode string
	trunkPrefix string
}

func (o *options) normalizer() phone.Normalizer {
	return phone.Normalizer{CountryCode: o.countryCode, TrunkPrefix: o.trunkPrefix}
}

// NewRootCmd builds the dialerctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "dialerctl",
		Short: "Sales dialer operator tool",
		Long: `Sales dialer operator tool

Inspect campaign queues, agent callbacks and call logs, and check how
lead phone numbers will be dialed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.countryCode, "country-code", "46", "Domestic calling code without +")
	rootCmd.PersistentFlags().StringVar(&opts.trunkPrefix, "trunk-prefix", "0", "Domestic trunk prefix to drop")

	queueCmd := &cobra.Command{
		Use:   "queue <campaign-id>",
		Short: "Show the actionable queue of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withStore(cmd, open, func(ctx context.Context, s Store) error {
				return showQueue(ctx, cmd.OutOrStdout(), s, opts.normalizer(), args[0], limit)
			})
		},
	}
	queueCmd.Flags().IntP("limit", "n", 50, "Maximum leads to show")

	callbacksCmd := &cobra.Command{
		Use:   "callbacks",
		Short: "List callback leads assigned to an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, _ := cmd.Flags().GetString("agent")
			page, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("page-size")
			return withStore(cmd, open, func(ctx context.Context, s Store) error {
				return showCallbacks(ctx, cmd.OutOrStdout(), s, agent, page, size)
			})
		},
	}
	callbacksCmd.Flags().StringP("agent", "a", "", "Agent id (required)")
	callbacksCmd.Flags().IntP("page", "p", 0, "Zero-based page")
	callbacksCmd.Flags().Int("page-size", 25, "Leads per page")
	_ = callbacksCmd.MarkFlagRequired("agent")

	callsCmd := &cobra.Command{
		Use:   "calls",
		Short: "Show an agent's call log and summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, _ := cmd.Flags().GetString("agent")
			since, _ := cmd.Flags().GetDuration("since")
			return withStore(cmd, open, func(ctx context.Context, s Store) error {
				to := time.Now().UTC()
				return showCalls(ctx, cmd.OutOrStdout(), s, agent, to.Add(-since), to)
			})
		},
	}
	callsCmd.Flags().StringP("agent", "a", "", "Agent id (required)")
	callsCmd.Flags().DurationP("since", "s", 24*time.Hour, "Look-back window")
	_ = callsCmd.MarkFlagRequired("agent")

	normalizeCmd := &cobra.Command{
		Use:   "normalize <number>...",
		Short: "Show the dialable form of phone numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showNormalized(cmd.OutOrStdout(), opts.normalizer(), args)
		},
	}

	rootCmd.AddCommand(queueCmd, callbacksCmd, callsCmd, normalizeCmd)
	return rootCmd
}

func withStore(cmd *cobra.Command, open Opener, fn func(context.Context, Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, closeFn, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeFn()
	return fn(ctx, s)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func showQueue(ctx context.Context, w io.Writer, s Store, n phone.Normalizer, campaignID string, limit int) error {
	camp, err := s.Leads.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	ls, err := s.Leads.ListActionable(ctx, campaignID, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Campaign: %s (%s)\n", camp.Name, camp.Kind)
	if len(ls) == 0 {
		color.New(color.FgYellow).Fprintln(w, "Queue is empty")
		return nil
	}

	table := newTable(w, "#", "Lead", "Name", "Company", "Phone", "Dial As", "Status")
	for i, l := range ls {
		dial, err := n.Normalize(l.Phone)
		if err != nil {
			dial = color.RedString("not dialable")
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			l.ID,
			l.Name,
			l.Company,
			l.Phone,
			dial,
			string(l.Status),
		})
	}
	table.Render()
	return nil
}

func showCallbacks(ctx context.Context, w io.Writer, s Store, agentID string, page, size int) error {
	if page < 0 || size <= 0 {
		return fmt.Errorf("invalid page %d/%d", page, size)
	}
	ls, err := s.Leads.ListCallbacks(ctx, agentID, page*size, size)
	if err != nil {
		return err
	}
	if len(ls) == 0 {
		color.New(color.FgYellow).Fprintf(w, "No callbacks for %s\n", agentID)
		return nil
	}

	table := newTable(w, "Lead", "Campaign", "Name", "Phone", "Updated")
	for _, l := range ls {
		table.Append([]string{l.ID, l.CampaignID, l.Name, l.Phone, formatTime(l.UpdatedAt)})
	}
	table.Render()
	return nil
}

func showCalls(ctx context.Context, w io.Writer, s Store, agentID string, from, to time.Time) error {
	entries, err := s.Calls.ListByAgent(ctx, agentID, from, to)
	if err != nil {
		return err
	}
	sum, err := reporting.NewService(s.Calls, s.Events).CallsSummary(ctx, reporting.CallsSummaryRequest{
		AgentID: agentID,
		Range:   reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		return err
	}

	if len(entries) > 0 {
		table := newTable(w, "Time", "Lead", "Phone", "Duration", "Status")
		for _, e := range entries {
			status := color.GreenString(string(e.Status))
			if e.Status != calls.CallStatusCompleted {
				status = color.YellowString(string(e.Status))
			}
			table.Append([]string{
				formatTime(e.CreatedAt),
				e.LeadID,
				e.Phone,
				(time.Duration(e.DurationSeconds) * time.Second).String(),
				status,
			})
		}
		table.Render()
	}

	fmt.Fprintf(w, "Calls: %d  Completed: %d  No answer: %d  Avg duration: %ds  Connection rate: %.0f%%\n",
		sum.TotalCalls, sum.CompletedCalls, sum.NoAnswerCalls, sum.AverageDurationSeconds, sum.ConnectionRate*100)
	return nil
}

func showNormalized(w io.Writer, n phone.Normalizer, numbers []string) error {
	table := newTable(w, "Input", "Dial As", "Prefix")
	failed := 0
	for _, raw := range numbers {
		dial, err := n.Normalize(raw)
		if err != nil {
			failed++
			table.Append([]string{raw, color.RedString(err.Error()), ""})
			continue
		}
		prefix, _ := n.CountryPrefix(dial)
		table.Append([]string{raw, dial, prefix})
	}
	table.Render()
	if failed > 0 {
		return fmt.Errorf("%d number(s) not dialable", failed)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
