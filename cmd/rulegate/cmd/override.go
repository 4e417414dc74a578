package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridianworks/rulegate/internal/override"
	"github.com/meridianworks/rulegate/internal/types"
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage override requests",
}

var overrideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List override requests",
	RunE:  runOverrideList,
}

var overrideApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending override request",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverrideApprove,
}

var overrideRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending override request",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverrideReject,
}

func init() {
	rootCmd.AddCommand(overrideCmd)
	overrideCmd.AddCommand(overrideListCmd)
	overrideCmd.AddCommand(overrideApproveCmd)
	overrideCmd.AddCommand(overrideRejectCmd)
	overrideListCmd.Flags().String("status", "", "filter by status (pending, approved, rejected)")
	overrideApproveCmd.Flags().String("actor", "", "resolving user (required)")
	overrideApproveCmd.MarkFlagRequired("actor")
	overrideRejectCmd.Flags().String("actor", "", "resolving user (required)")
	overrideRejectCmd.MarkFlagRequired("actor")
}

func runOverrideList(cmd *cobra.Command, args []string) error {
	statusName, _ := cmd.Flags().GetString("status")

	var status *types.OverrideStatus
	if statusName != "" {
		parsed, err := types.ParseOverrideStatus(statusName)
		if err != nil {
			return err
		}
		status = &parsed
	}

	_, logger, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()
	defer logger.Sync()

	requests, err := st.ListOverrides(cmd.Context(), status)
	if err != nil {
		return err
	}

	for _, req := range requests {
		consumed := ""
		if req.Consumed {
			consumed = " (consumed)"
		}
		fmt.Printf("%s  %-10s %-24s %-20s by %s%s\n",
			req.ID, req.Status, req.RuleCode, req.ContextRef, req.RequestedBy, consumed)
	}
	return nil
}

func runOverrideApprove(cmd *cobra.Command, args []string) error {
	return resolveOverride(cmd, args[0], true)
}

func runOverrideReject(cmd *cobra.Command, args []string) error {
	return resolveOverride(cmd, args[0], false)
}

func resolveOverride(cmd *cobra.Command, rawID string, approve bool) error {
	id, err := types.ParseOverrideID(rawID)
	if err != nil {
		return fmt.Errorf("invalid override id: %w", err)
	}
	actor, _ := cmd.Flags().GetString("actor")

	_, logger, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()
	defer logger.Sync()

	manager := override.NewManager(st, nil, logger)

	var req *types.OverrideRequest
	if approve {
		req, err = manager.Approve(cmd.Context(), id, actor)
	} else {
		req, err = manager.Reject(cmd.Context(), id, actor)
	}
	if err != nil {
		return err
	}

	fmt.Printf("override %s for rule %s is now %s\n", req.ID, req.RuleCode, req.Status)
	return nil
}
