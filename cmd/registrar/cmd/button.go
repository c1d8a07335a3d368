package cmd

import (
	"fmt"

	"github.com/cpacket/appliance-registrar/button"
	"github.com/spf13/cobra"
)

// ButtonCmd prints the "Deploy to Azure" badge markdown.
func ButtonCmd() *cobra.Command {
	var arm, ui string
	cmd := &cobra.Command{
		Use:   "button",
		Short: "Print the Markdown for the Deploy to Azure button",
		RunE: func(cmd *cobra.Command, _ []string) error {
			md, err := button.Markdown(arm, ui)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), md)
			return nil
		},
	}
	cmd.Flags().StringVarP(&arm, "arm", "a", "", "URL to ARM template")
	cmd.Flags().StringVarP(&ui, "ui", "u", "", "URL to createUiDefinition.json file")
	_ = cmd.MarkFlagRequired("arm")
	_ = cmd.MarkFlagRequired("ui")
	return cmd
}
