package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// Token prefixes identify a credential's purpose when one shows up in a
// log or a support ticket. They carry no cryptographic meaning.
const (
	accessTokenPrefix    = "sat_"
	refreshTokenPrefix   = "srt_"
	refreshTokenIDPrefix = "sri_"
	patPrefix            = "spat_"
)

const (
	maxEmailLength    = 255
	maxDeviceIDLength = 160
)

func newOpaqueToken(prefix string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// normalizeEmail lowercases and trims the address and applies the basic
// shape checks the engine relies on for indexing.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", validationErr("email", "email is required")
	}
	if len(email) > maxEmailLength {
		return "", validationErr("email", "email is too long")
	}
	if !strings.Contains(email, "@") {
		return "", validationErr("email", "email is malformed")
	}
	return email, nil
}

// normalizeDeviceID case-folds the device id and restricts it to
// [A-Za-z0-9:_.-], truncated at 160 characters. When empty, a fallback is
// derived from the token name so the one-session-per-device invariant
// still has a key to hang on.
func normalizeDeviceID(deviceID, tokenName string) string {
	id := foldDeviceChars(deviceID)
	if id == "" {
		id = foldDeviceChars(tokenName)
	}
	if id == "" {
		id = "unknown"
	}
	if len(id) > maxDeviceIDLength {
		id = id[:maxDeviceIDLength]
	}
	return id
}

func foldDeviceChars(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ':', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// deriveName builds a display name from provider-supplied parts, falling
// back to the email address.
func deriveName(first, last, email string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return email
	}
	return name
}

// dedupeSortedScopes lowers no casing; it only removes duplicates and
// sorts for stable comparisons.
func dedupeSortedScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
