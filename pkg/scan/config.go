package scan

import (
	"time"

	"github.com/spf13/viper"
)

const DefaultUserAgent = "XSS-Scanner/1.0 (Educational Security Testing Tool)"

// Config controls request pacing, transport and payload selection.
type Config struct {
	Delay            time.Duration `json:"delay" yaml:"delay"`
	MaxConcurrent    int           `json:"max_concurrent" yaml:"max_concurrent"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	MaxPayloadLength int           `json:"max_payload_length" yaml:"max_payload_length"`
	UserAgent        string        `json:"user_agent" yaml:"user_agent"`
	HTTPVersion      string        `json:"http_version" yaml:"http_version"`
	FollowRedirects  bool          `json:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects     int           `json:"max_redirects" yaml:"max_redirects"`
	VerifySSL        bool          `json:"verify_ssl" yaml:"verify_ssl"`
	// BasicPayloads and BypassPayloads bound how many corpus entries of each
	// category are tried per parameter.
	BasicPayloads  int    `json:"basic_payloads" yaml:"basic_payloads"`
	BypassPayloads int    `json:"bypass_payloads" yaml:"bypass_payloads"`
	Proxy          string `json:"proxy" yaml:"proxy"`
}

func DefaultConfig() Config {
	return Config{
		Delay:            time.Second,
		MaxConcurrent:    5,
		Timeout:          10 * time.Second,
		MaxPayloadLength: 1000,
		UserAgent:        DefaultUserAgent,
		HTTPVersion:      "1.1",
		FollowRedirects:  true,
		MaxRedirects:     5,
		BasicPayloads:    5,
		BypassPayloads:   3,
	}
}

// ConfigFromViper reads the scan.* keys, keeping defaults for unset or invalid values.
func ConfigFromViper() Config {
	cfg := DefaultConfig()
	if viper.IsSet("scan.delay") {
		cfg.Delay = viper.GetDuration("scan.delay")
	}
	if n := viper.GetInt("scan.max_concurrent"); n > 0 {
		cfg.MaxConcurrent = n
	}
	if d := viper.GetDuration("scan.timeout"); d > 0 {
		cfg.Timeout = d
	}
	if n := viper.GetInt("scan.max_payload_length"); n > 0 {
		cfg.MaxPayloadLength = n
	}
	if ua := viper.GetString("scan.user_agent"); ua != "" {
		cfg.UserAgent = ua
	}
	if v := viper.GetString("scan.http_version"); v != "" {
		cfg.HTTPVersion = v
	}
	if viper.IsSet("scan.follow_redirects") {
		cfg.FollowRedirects = viper.GetBool("scan.follow_redirects")
	}
	if viper.IsSet("scan.max_redirects") {
		cfg.MaxRedirects = viper.GetInt("scan.max_redirects")
	}
	cfg.VerifySSL = viper.GetBool("scan.verify_ssl")
	if n := viper.GetInt("scan.basic_payloads"); n > 0 {
		cfg.BasicPayloads = n
	}
	if n := viper.GetInt("scan.bypass_payloads"); n > 0 {
		cfg.BypassPayloads = n
	}
	cfg.Proxy = viper.GetString("scan.proxy")
	return cfg
}
