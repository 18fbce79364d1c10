package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	AlloraBaseURL    = "https://api.upshot.xyz/v2/allora/consumer"
	AlloraNetwork    = "ethereum-11155111"
	OpenAIBaseURL    = "https://api.openai.com/v1"
)

// IsAllowedUpstreamURL accepts https endpoints and plain http only for
// loopback hosts.
func IsAllowedUpstreamURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

// JoinURL appends path segments to a base URL without doubling slashes.
func JoinURL(base string, segments ...string) string {
	out := strings.TrimRight(strings.TrimSpace(base), "/")
	for _, s := range segments {
		out += "/" + url.PathEscape(strings.Trim(s, "/"))
	}
	return out
}
