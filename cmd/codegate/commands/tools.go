package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codegate-ai/codegate/internal/config"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/mcp"
	"github.com/codegate-ai/codegate/internal/tool"
)

var toolsWorkDir string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List available tools, including configured MCP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := GetWorkDir(toolsWorkDir)
		if err != nil {
			return err
		}
		cfg, err := config.Load(workDir)
		if err != nil {
			return err
		}

		registry := tool.DefaultRegistry(workDir)

		manager := mcp.NewManager()
		defer manager.Close()
		for name, server := range cfg.MCPServers {
			if err := manager.AddServer(cmd.Context(), name, server); err != nil {
				logging.Component("tools").Warn().
					Str("server", name).
					Err(err).
					Msg("mcp server unavailable")
			}
		}
		manager.Register(registry)

		out := cmd.OutOrStdout()
		for _, name := range registry.Names() {
			t, ok := registry.Get(name)
			if !ok {
				continue
			}
			marker := " "
			if t.IsReadOnly(nil) {
				marker = "r"
			}
			fmt.Fprintf(out, "%s %-24s %s\n", marker, name, firstLine(t.Description()))
		}
		return nil
	},
}

func init() {
	toolsCmd.Flags().StringVarP(&toolsWorkDir, "workdir", "w", "", "Working directory")
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
