package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pyneda/xsslab/lib"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string
var debugLogging bool
var prettyLogs bool
var format string

var rootCmd = &cobra.Command{
	Use:   "xsslab",
	Short: "Context-aware XSS payload analysis, fuzzing and polyglot toolkit",
	Long: `xsslab analyzes XSS payloads, fingerprints injection contexts, generates
context-aware and polyglot payloads, evaluates Content-Security-Policy headers
and tests URL parameters for reflected XSS.`,
	SilenceUsage: true,
}

// Execute runs the root command, cancelling in-flight work on interrupt.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.xsslab.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Use debug level logging")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", true, "Use pretty logging instead JSON")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "pretty", "Output format (pretty, text, json, yaml, table)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, err := lib.ParseFormatType(format); err != nil {
			return err
		}
		switch logFile := viper.GetString("logging.file"); {
		case logFile != "":
			lib.ZeroConsoleAndFileLog(logFile)
		case prettyLogs:
			lib.ZeroConsoleLog()
		default:
			log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		}
		lib.SetLogLevel(debugLogging)
		return nil
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigName(".xsslab")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
