package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiaot623/dealroom/internal/domain"
)

func newNegotiateCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "negotiate",
		Aliases: []string{"negotiation", "n"},
		Short:   "Start and inspect negotiations",
	}

	var req domain.StartNegotiationRequest
	var opener string
	var watch bool
	start := &cobra.Command{
		Use:   "start",
		Short: "Start a negotiation",
		Long: `Start a negotiation between a buyer and a seller. Flags that are left
unset fall back to the server's demo negotiation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Opener = domain.AgentRole(opener)
			c := client()
			session, err := c.StartNegotiation(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s (%s vs %s)\n", session.SessionID, session.BuyerAgentID, session.SellerAgentID)
			if !watch {
				return nil
			}
			return watchSession(cmd.Context(), c, session.SessionID, cmd.OutOrStdout())
		},
	}
	start.Flags().StringVar(&req.BuyerAgentID, "buyer", "", "buyer agent id")
	start.Flags().StringVar(&req.SellerAgentID, "seller", "", "seller agent id")
	start.Flags().StringVar(&req.ProductID, "product", "", "product id")
	start.Flags().IntVar(&req.Quantity, "quantity", 0, "units to negotiate")
	start.Flags().Float64Var(&req.MaxBudget, "max-budget", 0, "buyer budget for the whole quantity")
	start.Flags().Float64Var(&req.MinPrice, "min-price", 0, "seller floor for the whole quantity")
	start.Flags().StringVar(&opener, "opener", "", "side that sends the first offer: buyer or seller")
	start.Flags().BoolVarP(&watch, "watch", "w", false, "stream events until the session ends")

	get := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show a negotiation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := client().GetNegotiation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), session)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List negotiations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := client().ListNegotiations(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tBUYER\tSELLER\tSTATUS\tMESSAGES\tFINAL PRICE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", s.SessionID, s.BuyerAgentID, s.SellerAgentID, s.Status, len(s.Messages), formatPrice(s.FinalPrice))
			}
			return w.Flush()
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a running negotiation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := client().CancelNegotiation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", session.SessionID, session.Status)
			return nil
		},
	}

	cmd.AddCommand(start, get, list, cancel)
	return cmd
}

func printSession(out io.Writer, s domain.NegotiationSession) {
	fmt.Fprintf(out, "session:  %s\n", s.SessionID)
	fmt.Fprintf(out, "buyer:    %s\n", s.BuyerAgentID)
	fmt.Fprintf(out, "seller:   %s\n", s.SellerAgentID)
	fmt.Fprintf(out, "status:   %s\n", s.Status)
	fmt.Fprintf(out, "price:    %s\n", formatPrice(s.FinalPrice))
	if s.HCSTopicID != "" {
		fmt.Fprintf(out, "topic:    %s\n", s.HCSTopicID)
	}
	for _, m := range s.Messages {
		fmt.Fprintln(out, formatMessage(m))
	}
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func formatMessage(m *domain.SignedMessage) string {
	switch data := m.Data.(type) {
	case domain.NegotiationOffer:
		return fmt.Sprintf("  %-8s %-12s %d x %s @ %.4f = %.2f", m.Type, m.AgentID, data.Quantity, data.ProductID, data.PricePerUnit, data.TotalPrice)
	case domain.RejectReason:
		return fmt.Sprintf("  %-8s %-12s %s", m.Type, m.AgentID, data.Reason)
	default:
		return fmt.Sprintf("  %-8s %-12s", m.Type, m.AgentID)
	}
}
