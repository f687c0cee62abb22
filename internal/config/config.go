package config

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// LoadConfig reads config.yaml from /etc/xsslab/ or the working directory and
// seeds every default.
func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/xsslab/")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Debug().Msg("Config file not found, using defaults")
		} else {
			log.Panic().Err(err).Msg("Fatal error reading config file")
		}
	}
	SetDefaultConfig()
}

func SetDefaultConfig() {
	// Analysis
	viper.SetDefault("analysis.batch_concurrency", 8)

	// Fuzzing
	viper.SetDefault("fuzz.max_attempts", 100)
	viper.SetDefault("fuzz.marker", "CANARY")
	viper.SetDefault("fuzz.window_size", 100)
	viper.SetDefault("fuzz.selection", "first")
	viper.SetDefault("fuzz.seed", 0)
	viper.SetDefault("fuzz.mutation_limit", 5)

	// Polyglot
	viper.SetDefault("polyglot.max_length", 500)
	viper.SetDefault("polyglot.max_payloads", 10)
	viper.SetDefault("polyglot.include_obfuscation", true)
	viper.SetDefault("polyglot.seed", 0)

	// Scan
	viper.SetDefault("scan.delay", time.Second)
	viper.SetDefault("scan.max_concurrent", 5)
	viper.SetDefault("scan.timeout", 10*time.Second)
	viper.SetDefault("scan.max_payload_length", 1000)
	viper.SetDefault("scan.user_agent", "XSS-Scanner/1.0 (Educational Security Testing Tool)")
	viper.SetDefault("scan.http_version", "1.1")
	viper.SetDefault("scan.follow_redirects", true)
	viper.SetDefault("scan.max_redirects", 5)
	viper.SetDefault("scan.verify_ssl", false)
	viper.SetDefault("scan.basic_payloads", 5)
	viper.SetDefault("scan.bypass_payloads", 3)
	viper.SetDefault("scan.proxy", "")

	// API
	viper.SetDefault("api.listen.host", "")
	viper.SetDefault("api.listen.port", 8013)
	viper.SetDefault("api.cors.origins", []string{"*"})
	viper.SetDefault("api.limiter.max", 60)
	viper.SetDefault("api.limiter.expiration", 30*time.Second)

	// Logging
	viper.SetDefault("logging.file", "")
}
