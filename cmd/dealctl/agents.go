package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiaot623/dealroom/internal/domain"
)

func newAgentsCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agent identities",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := client().ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATUS\tREPUTATION")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.AgentID, a.Name, a.Role, a.Status, a.ReputationScore)
			}
			return w.Flush()
		},
	}

	var req domain.RegisterAgentRequest
	var role string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a new agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = domain.AgentRole(role)
			agent, err := client().RegisterAgent(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", agent.AgentID, agent.Role)
			return nil
		},
	}
	register.Flags().StringVar(&req.Name, "name", "", "agent display name")
	register.Flags().StringVar(&role, "role", string(domain.AgentRoleBoth), "buyer, seller or both")
	register.Flags().StringVar(&req.Owner, "owner", "", "owner address")
	register.Flags().StringVar(&req.PublicKey, "public-key", "", "agent public key")
	for _, name := range []string{"name", "owner", "public-key"} {
		_ = register.MarkFlagRequired(name)
	}

	cmd.AddCommand(list, register)
	return cmd
}
