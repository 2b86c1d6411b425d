package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codegate-ai/codegate/internal/config"
	"github.com/codegate-ai/codegate/internal/permission"
)

var (
	rulesWorkDir  string
	rulesBehavior string
	rulesSource   string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit permission rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the effective permission rules by source",
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := GetWorkDir(rulesWorkDir)
		if err != nil {
			return err
		}
		cfg, err := config.Load(workDir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mode: %s\n", cfg.Permissions.Mode)
		for _, behavior := range []permission.Behavior{permission.Deny, permission.Ask, permission.Allow} {
			for _, source := range permission.Sources {
				for _, rule := range cfg.Permissions.Rules(behavior, source) {
					fmt.Fprintf(out, "%-6s %-16s %s\n", behavior, source, rule)
				}
			}
		}
		return nil
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <rule>",
	Short: "Persist a permission rule into a settings file",
	Long: `Persist a permission rule, e.g.:

  codegate rules add 'Bash(go test:*)'
  codegate rules add --behavior deny --source project 'WebFetch'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := GetWorkDir(rulesWorkDir)
		if err != nil {
			return err
		}

		var behavior permission.Behavior
		switch rulesBehavior {
		case "allow":
			behavior = permission.Allow
		case "deny":
			behavior = permission.Deny
		case "ask":
			behavior = permission.Ask
		default:
			return fmt.Errorf("invalid behavior: %s (must be allow, deny, or ask)", rulesBehavior)
		}

		var source permission.Source
		switch rulesSource {
		case "user":
			source = permission.SourceUserSettings
		case "project":
			source = permission.SourceProjectSettings
		case "local":
			source = permission.SourceLocalSettings
		default:
			return fmt.Errorf("invalid source: %s (must be user, project, or local)", rulesSource)
		}

		return config.PersistRule(workDir, source, behavior, args[0])
	},
}

func init() {
	rulesCmd.PersistentFlags().StringVarP(&rulesWorkDir, "workdir", "w", "", "Working directory")
	rulesAddCmd.Flags().StringVar(&rulesBehavior, "behavior", "allow", "Rule behavior: allow, deny, ask")
	rulesAddCmd.Flags().StringVar(&rulesSource, "source", "local", "Settings file: user, project, local")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
}
