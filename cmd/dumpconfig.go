package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var dumpconfigOutput string
var dumpconfigForce bool

var dumpconfigCmd = &cobra.Command{
	Use:   "dumpconfig",
	Short: "Print the effective configuration as YAML",
	Long:  `Prints the effective configuration as YAML, or writes it to --output so it can be used as a starting config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dumpconfigOutput == "" {
			out, err := yaml.Marshal(viper.AllSettings())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		}
		if _, err := os.Stat(dumpconfigOutput); err == nil && !dumpconfigForce {
			return fmt.Errorf("file %s already exists, use --force to overwrite", dumpconfigOutput)
		}
		if err := viper.WriteConfigAs(dumpconfigOutput); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		log.Info().Str("path", dumpconfigOutput).Msg("Config file written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpconfigCmd)
	dumpconfigCmd.Flags().StringVarP(&dumpconfigOutput, "output", "o", "", "Write the configuration to this file")
	dumpconfigCmd.Flags().BoolVar(&dumpconfigForce, "force", false, "Overwrite an existing file")
}
