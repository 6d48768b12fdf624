package commands

import (
	"fmt"

	"github.com/dyluth/parley/internal/printer"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the communication policy",
	Long: `Inspect the directed communication matrix agents are held to.

A message from SENDER to RECIPIENT is allowed when the edge weight is at least
0.5. Pairs without an edge use policy.default_weight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured edges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := cfg.PolicyMatrix()
		if err != nil {
			return printer.Error("invalid policy", err.Error(), nil)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-12s %-12s %-7s %s\n", "FROM", "TO", "WEIGHT", "ALLOWED")
		for _, e := range m.Edges() {
			fmt.Fprintf(w, "%-12s %-12s %-7.2f %t\n", e.From, e.To, e.Weight, m.IsAllowed(e.From, e.To))
		}
		fmt.Fprintf(w, "\nDefault weight: %.2f\n", m.DefaultWeight())
		return nil
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check SENDER RECIPIENT",
	Short: "Explain whether SENDER may message RECIPIENT",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := cfg.PolicyMatrix()
		if err != nil {
			return printer.Error("invalid policy", err.Error(), nil)
		}

		d := m.Check(args[0], args[1])
		verdict := "allowed"
		if !d.Allowed {
			verdict = "blocked"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %s (%s)\n", args[0], args[1], verdict, d.Reason)
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyListCmd, policyCheckCmd)
	rootCmd.AddCommand(policyCmd)
}
