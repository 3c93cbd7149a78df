package migrator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var userInfoPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)

// sanitizeConnectionError strips credentials from a golang-migrate connection
// error. The library embeds the full database URL in its error messages, so a
// logged error would otherwise expose the password.
func sanitizeConnectionError(err error, dbURL string) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	if dbURL != "" && strings.Contains(errMsg, dbURL) {
		errMsg = strings.ReplaceAll(errMsg, dbURL, redactURL(dbURL))
	}

	// The password may also appear outside the full URL (quoted, re-encoded).
	if u, parseErr := url.Parse(dbURL); parseErr == nil && u.User != nil {
		if pass, ok := u.User.Password(); ok && pass != "" {
			errMsg = strings.ReplaceAll(errMsg, pass, "[REDACTED]")
			if encoded := url.QueryEscape(pass); encoded != pass {
				errMsg = strings.ReplaceAll(errMsg, encoded, "[REDACTED]")
			}
		}
	}

	// Catch any user:password@ pattern the URL parse missed.
	errMsg = userInfoPattern.ReplaceAllString(errMsg, "://$1:[REDACTED]@")

	return fmt.Errorf("migrate.New: %s", errMsg)
}

// redactURL keeps the scheme and host for debugging and hides everything else.
func redactURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.Host == "" {
		return "[DATABASE_URL_REDACTED]"
	}
	return fmt.Sprintf("%s://[REDACTED]@%s/[REDACTED]", u.Scheme, u.Host)
}
