// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers written without a country code.
const DefaultRegion = "US"

// NormalizeE164 formats a phone number to E.164 using region for national
// numbers. Unparseable or invalid input is returned trimmed.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// NormalizePtr applies NormalizeE164 to an optional number.
func NormalizePtr(input *string, region string) *string {
	if input == nil {
		return nil
	}
	normalized := NormalizeE164(*input, region)
	return &normalized
}
