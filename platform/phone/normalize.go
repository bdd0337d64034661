// Package phone normalizes lead phone numbers for the messaging gateway.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Numbers without a country prefix are assumed to be Singapore numbers.
const defaultRegion = "SG"

// NormalizeE164 formats a number to E.164. Input that cannot be parsed or is
// not a valid number comes back trimmed but otherwise untouched, so the
// gateway sees what the lead record holds.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
