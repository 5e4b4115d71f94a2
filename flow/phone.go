package flow

import "strings"

// NormalizePhone canonicalizes an Uzbek phone to +998XXXXXXXXX.
// Accepts "+998 90 123 45 67", "(90)1234567", "998-90-123-45-67",
// "901234567" and similar. Reports false when the input is not an
// Uzbek number.
func NormalizePhone(raw string) (string, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case strings.HasPrefix(d, "998") && len(d) == 12:
		return "+" + d, true
	case len(d) == 9 && d[0] >= '3' && d[0] <= '9':
		return "+998" + d, true
	}
	return "", false
}

// ContactPhone normalizes a shared-contact number, which Telegram may
// deliver without the plus sign.
func ContactPhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "+") {
		return raw
	}
	return "+" + raw
}
