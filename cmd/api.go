package cmd

import (
	"github.com/pyneda/xsslab/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Starts the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.StartAPI(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().String("host", "", "Listen host (overrides api.listen.host)")
	apiCmd.Flags().Int("port", 0, "Listen port (overrides api.listen.port)")
	viper.BindPFlag("api.listen.host", apiCmd.Flags().Lookup("host"))
	viper.BindPFlag("api.listen.port", apiCmd.Flags().Lookup("port"))
}
