package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used when a guest phone number carries no country
// prefix. Channel managers usually deliver E.164 already; this is the
// fallback for domestic-format numbers typed into the PMS.
var DefaultPhoneRegion = "MM"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

func ValidatePhoneNumber(phoneNumber, region string) error {
	p, err := libphonenumber.Parse(phoneNumber, region)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}

// NormalizePhone canonicalizes a phone number to E.164 so that numbers stored
// by the PMS and numbers delivered by channel managers compare equal.
// Returns "" when the input cannot be parsed as a phone number at all.
func NormalizePhone(phoneNumber string) string {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return ""
	}
	p, err := libphonenumber.Parse(phoneNumber, DefaultPhoneRegion)
	if err != nil {
		// Keep digits only as a last resort so suffix matching still works.
		digits := digitsOnly(phoneNumber)
		if len(digits) < 5 {
			return ""
		}
		return digits
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

// PhoneSuffix returns the last n digits of a phone number for weak matching
// across differently-prefixed renditions of the same number.
func PhoneSuffix(phoneNumber string, n int) string {
	digits := digitsOnly(NormalizePhone(phoneNumber))
	if len(digits) < n {
		return ""
	}
	return digits[len(digits)-n:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeNameTokens lower-cases a person name and splits it into unique
// tokens for fuzzy overlap scoring.
func NormalizeNameTokens(name string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,-'\"")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
