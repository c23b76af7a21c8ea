package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexandro/changefeed-mcp/register"
)

func newRegisterCommand() *cobra.Command {
	var serverName string

	cmd := &cobra.Command{
		Use:   "register <project|user> [directory] [-- server args]",
		Short: "Add this server to an MCP client config",
		Long: `Add this binary to an MCP client config file.

  project [directory]   writes <directory>/.mcp.json (default: .)
  user                  writes ~/.claude.json

Arguments after -- are passed to the server on every start.`,
		Example: `  changefeed-mcp register project .
  changefeed-mcp register user -- --dir ~/inbox --delay 1s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			positional, serverArgs := splitAtDash(args, cmd.ArgsLenAtDash())
			if len(positional) == 0 {
				return fmt.Errorf("missing scope (project or user)")
			}

			scope, err := register.ParseScope(positional[0])
			if err != nil {
				return err
			}
			directory := ""
			switch {
			case scope == register.ProjectScope && len(positional) == 2:
				directory = positional[1]
			case len(positional) > 1 && scope == register.UserScope, len(positional) > 2:
				return fmt.Errorf("too many arguments for %s scope: %v", scope, positional[1:])
			}

			configPath, err := register.Register(register.Options{
				Scope:      scope,
				Directory:  directory,
				ServerName: serverName,
				ServerArgs: serverArgs,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered in %s\n", configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverName, "name", "", "Server name in the config (default: binary name without -mcp)")
	return cmd
}

// splitAtDash separates positional arguments from those after "--".
func splitAtDash(args []string, dash int) (positional, rest []string) {
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}
