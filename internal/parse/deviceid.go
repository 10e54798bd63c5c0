package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidDeviceID is returned for identifiers outside the accepted format.
var ErrInvalidDeviceID = errors.New("invalid device id")

var deviceIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{2,63}$`)

const displayNamePrefix = "Plant Monitor"

// DeviceID normalizes a manufacturer-assigned external identifier.
// Surrounding whitespace is dropped; case is preserved since ids are opaque.
func DeviceID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !deviceIDRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeviceID, raw)
	}
	return s, nil
}

// DisplayName derives the default name of a freshly provisioned device from
// the last four characters of its id, e.g. "PM-AB12" -> "Plant Monitor AB12".
func DisplayName(externalID string) string {
	suffix := externalID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return displayNamePrefix + " " + suffix
}

// Limit parses an optional positive integer query value. Empty means def;
// values above max are clamped.
func Limit(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > max {
		return max, nil
	}
	return n, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
