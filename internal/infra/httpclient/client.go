package httpclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/datallboy/gofichier/internal/domain"
	"golang.org/x/net/publicsuffix"
)

// New builds a client for the given settings. The timeout bounds dialing,
// TLS and waiting for response headers; body reads are bounded separately by
// the caller so long transfers are not cut off.
func New(s domain.Settings) (*http.Client, error) {
	timeout := s.Timeout()
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultTimeoutSeconds) * time.Second
	}

	proxy, err := ProxyFunc(s.Proxy)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	return &http.Client{Transport: transport, Jar: jar}, nil
}

// ProxyFunc parses the proxy setting. Empty means use the environment.
// A bare host:port is taken as an http proxy; socks5:// is handled by net/http.
func ProxyFunc(raw string) (func(*http.Request) (*url.URL, error), error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return http.ProxyFromEnvironment, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy %q", raw)
	}

	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	return http.ProxyURL(u), nil
}

// IsTimeout reports whether err came from a network timeout.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
