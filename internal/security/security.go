// Package security validates database connection targets and screens
// statements before they are sent anywhere.
package security

import (
	"fmt"
	"net/netip"
	"net/url"
	"slices"
	"strings"
)

// blockedNetworks lists address ranges a user-supplied database URL may
// never point at. Loopback is blocked too; localhost access goes through
// the host allowlist instead.
var blockedNetworks = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"127.0.0.0/8",
}

// Policy holds the connection allowlists. Zero value rejects everything.
type Policy struct {
	AllowedHosts []string
	AllowedPorts []int
}

// ValidateDatabaseURL checks that url names a PostgreSQL endpoint on an
// allowed host and port. It returns a user-facing reason when the URL is
// rejected.
func (p Policy) ValidateDatabaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid database URL format: %w", err)
	}

	if u.Scheme != "postgresql" && u.Scheme != "postgres" {
		return fmt.Errorf("only PostgreSQL connections are allowed")
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("host is required in database URL")
	}

	port := 5432
	if s := u.Port(); s != "" {
		if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
			return fmt.Errorf("invalid port %q", s)
		}
	}
	if !slices.Contains(p.AllowedPorts, port) {
		return fmt.Errorf("port %d is not allowed", port)
	}

	if slices.Contains(p.AllowedHosts, host) {
		return nil
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// Not an IP literal. Domains must be allowlisted explicitly.
		return fmt.Errorf("domain %s is not in allowed list", host)
	}
	for _, cidr := range blockedNetworks {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return fmt.Errorf("access to private network %s is not allowed", prefix)
		}
	}
	return nil
}

// SanitizeURL strips the password from a connection string so it can be
// logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid_url"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
			// url.String escapes *** as-is, keep it readable.
			return strings.Replace(u.String(), "%2A%2A%2A", "***", 1)
		}
	}
	return u.String()
}

// dangerousCommands are statement keywords rejected by the optional
// safety check. The check is off by default: write statements are
// rewritten to SELECT equivalents before execution anyway.
var dangerousCommands = []string{
	"drop", "delete", "truncate", "insert", "update",
	"create", "alter", "grant", "revoke", "copy",
}

var suspiciousPatterns = []string{
	"pg_sleep", "pg_terminate_backend", "pg_cancel_backend",
	"information_schema", "pg_catalog", "pg_stat_activity",
}

// CheckQuery applies the keyword screen to a statement. It returns a
// warning describing the first rejected token, or nil.
func CheckQuery(query string) error {
	lowered := strings.ToLower(strings.TrimSpace(query))
	fields := strings.Fields(lowered)
	if len(fields) == 0 {
		return nil
	}
	if slices.Contains(dangerousCommands, fields[0]) {
		return fmt.Errorf("command %q is not allowed for security reasons", strings.ToUpper(fields[0]))
	}
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lowered, pattern) {
			return fmt.Errorf("pattern %q is potentially dangerous", pattern)
		}
	}
	return nil
}
