package util

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// dottedQuadRe matches the textual shape only: "999.1.1.1" passes,
// IPv6 and HTML error pages do not.
var dottedQuadRe = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// IsDottedQuad reports whether s has the shape of an IPv4 address.
func IsDottedQuad(s string) bool {
	return dottedQuadRe.MatchString(s)
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// EnsurePort appends defaultPort to addr when it has none, so users can
// write "resolver1.opendns.com" instead of "resolver1.opendns.com:53".
func EnsurePort(addr string, defaultPort int) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}
	host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	return FormatAddr(host, defaultPort), nil
}
