package scan

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

func proxyFunc(proxy string) func(*http.Request) (*url.URL, error) {
	if proxy == "" {
		return http.ProxyFromEnvironment
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		log.Error().Err(err).Str("proxy", proxy).Msg("Error parsing proxy url, using environment proxy")
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(proxyURL)
}

func newTLSConfig(verify bool) *tls.Config {
	return &tls.Config{
		Renegotiation:      tls.RenegotiateOnceAsClient,
		InsecureSkipVerify: !verify,
	}
}

// newTransport picks the round tripper for the configured HTTP version.
// HTTP/2 and HTTP/3 are enforced without fallback.
func newTransport(cfg Config) (http.RoundTripper, error) {
	switch strings.TrimSpace(cfg.HTTPVersion) {
	case "", "1", "1.1":
		return &http.Transport{
			Proxy: proxyFunc(cfg.Proxy),
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			TLSClientConfig:       newTLSConfig(cfg.VerifySSL),
		}, nil
	case "2":
		return &http2.Transport{
			DialTLS: func(network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
				if tlsCfg == nil {
					tlsCfg = newTLSConfig(cfg.VerifySSL)
				}
				tlsCfg.NextProtos = []string{"h2"}
				return tls.DialWithDialer(&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}, network, addr, tlsCfg)
			},
			TLSClientConfig: newTLSConfig(cfg.VerifySSL),
		}, nil
	case "3":
		return &http3.RoundTripper{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL},
		}, nil
	}
	return nil, fmt.Errorf("unsupported http version %q", cfg.HTTPVersion)
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !cfg.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}, nil
}

// Error categories recorded on failed requests.
const (
	ErrorCategoryNone               = "none"
	ErrorCategoryConnectionClosed   = "connection_closed_eof"
	ErrorCategoryConnectionRefused  = "connection_refused"
	ErrorCategoryConnectionReset    = "connection_reset"
	ErrorCategoryDNSResolution      = "dns_resolution"
	ErrorCategoryNetworkUnreachable = "network_unreachable"
	ErrorCategoryTimeout            = "timeout"
	ErrorCategoryCanceled           = "canceled"
	ErrorCategoryTLS                = "tls_error"
	ErrorCategoryRedirects          = "too_many_redirects"
	ErrorCategoryURLInvalid         = "url_invalid"
	ErrorCategoryUnknown            = "unknown"
)

var errorCategories = []struct {
	needle, category string
}{
	{"context canceled", ErrorCategoryCanceled},
	{"eof", ErrorCategoryConnectionClosed},
	{"connection refused", ErrorCategoryConnectionRefused},
	{"connection reset", ErrorCategoryConnectionReset},
	{"no such host", ErrorCategoryDNSResolution},
	{"unreachable", ErrorCategoryNetworkUnreachable},
	{"deadline exceeded", ErrorCategoryTimeout},
	{"timeout", ErrorCategoryTimeout},
	{"tls", ErrorCategoryTLS},
	{"certificate", ErrorCategoryTLS},
	{"redirects", ErrorCategoryRedirects},
	{"invalid url", ErrorCategoryURLInvalid},
	{"invalid control character", ErrorCategoryURLInvalid},
}

// CategorizeRequestError maps a transport error to one of the ErrorCategory values.
func CategorizeRequestError(err error) string {
	if err == nil {
		return ErrorCategoryNone
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorCategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	}
	// The url.Error wrapper carries the request URL, which holds the payload.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	msg := strings.ToLower(err.Error())
	for _, c := range errorCategories {
		if strings.Contains(msg, c.needle) {
			return c.category
		}
	}
	return ErrorCategoryUnknown
}
