package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitHostPort parses "host", "host:port", "[v6]" or "[v6]:port",
// filling in defaultPort when none is given.
func SplitHostPort(target string, defaultPort int) (string, int, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", 0, fmt.Errorf("empty host")
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// No port: bare host or bracketed IPv6 literal.
		host = strings.TrimSuffix(strings.TrimPrefix(target, "["), "]")
		if strings.Contains(host, "]") || strings.Contains(host, "[") {
			return "", 0, fmt.Errorf("invalid host %q", target)
		}
		return host, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("empty host in %q", target)
	}
	return host, port, nil
}
