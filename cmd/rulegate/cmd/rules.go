package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridianworks/rulegate/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the rule catalog",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules in the catalog",
	RunE:  runRulesList,
}

var rulesApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Insert or update rule definitions from a JSON file",
	RunE:  runRulesApply,
}

var rulesStatusCmd = &cobra.Command{
	Use:   "status <code> <draft|active|suspended|retired>",
	Short: "Change a rule's lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE:  runRulesStatus,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesApplyCmd)
	rulesCmd.AddCommand(rulesStatusCmd)
	rulesApplyCmd.Flags().String("file", "", "path to a JSON file holding an array of rules (required)")
	rulesApplyCmd.MarkFlagRequired("file")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	_, logger, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()
	defer logger.Sync()

	rules, err := st.ListAllRules(cmd.Context())
	if err != nil {
		return err
	}

	for _, rule := range rules {
		fmt.Printf("%-24s v%-3d %-10s prio %-4d %-12s %s\n",
			rule.Code, rule.Version, rule.Status, rule.Priority, rule.Trigger, rule.Title)
	}
	return nil
}

func runRulesApply(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []types.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return fmt.Errorf("invalid rules file: %w", err)
	}

	_, logger, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()
	defer logger.Sync()

	for i := range rules {
		if err := st.UpsertRule(cmd.Context(), &rules[i]); err != nil {
			return err
		}
	}

	fmt.Printf("%d rule(s) applied\n", len(rules))
	return nil
}

func runRulesStatus(cmd *cobra.Command, args []string) error {
	status, err := types.ParseRuleStatus(args[1])
	if err != nil {
		return err
	}

	_, logger, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()
	defer logger.Sync()

	if err := st.SetRuleStatus(cmd.Context(), args[0], status); err != nil {
		return err
	}

	fmt.Printf("rule %s is now %s\n", args[0], status)
	return nil
}
