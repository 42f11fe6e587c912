package main

import (
	"fmt"

	"github.com/effective-security/toolagent/tools"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the local and discovered tools",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			fmt.Println(tools.GetDescriptionsJSON(a.registry.List()...))
			return nil
		}
		fmt.Print(tools.GetDescriptions(a.registry.List()...))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().Bool("json", false, "print JSON instead of YAML")
}
