// Package httpx holds the HTTP client plumbing shared by scrapers and LLM providers.
package httpx

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ProxyFunc routes https requests through httpsProxy and everything else
// through httpProxy. Unset proxies fall back to the environment
// (HTTP_PROXY, HTTPS_PROXY, NO_PROXY).
func ProxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	plain, plainErr := parseProxy(httpProxy)
	secure, secureErr := parseProxy(httpsProxy)

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && secure != nil {
			return secure, nil
		}
		if req.URL.Scheme == "https" && secureErr != nil {
			return nil, secureErr
		}
		if plain != nil {
			return plain, nil
		}
		if plainErr != nil {
			return nil, plainErr
		}
		return http.ProxyFromEnvironment(req)
	}
}

func parseProxy(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}
	return u, nil
}

// NewClient returns a client with its own transport so proxy settings do not
// leak into http.DefaultTransport
func NewClient(timeout time.Duration, httpProxy, httpsProxy string) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: ProxyFunc(httpProxy, httpsProxy)},
	}
}
