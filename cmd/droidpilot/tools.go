package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/tools"
)

func newToolsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the device tools available to the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			registry := tools.Default(cfg.Device.ScreenshotDir)
			specs := registry.Specs()
			sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tARGUMENTS\tDESCRIPTION")
			for _, spec := range specs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, schemaArgs(spec.InputSchema), spec.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "droidpilot.yaml", "path to config file")
	return cmd
}

// schemaArgs renders a JSON schema's property names as a compact list.
func schemaArgs(schema map[string]any) string {
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return "-"
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
