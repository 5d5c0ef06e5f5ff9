package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chemcloud",
	Short: "Authenticated gateway for distributed quantum chemistry compute.",
	Long:  "Authenticated gateway for distributed quantum chemistry compute.",
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(versionCmd())
}
