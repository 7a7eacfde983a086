// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"conversa_backend/platform/apperr"
)

// DefaultRegion is used when a number carries no country code.
// Deployments override it via PHONE_DEFAULT_REGION.
const DefaultRegion = "AR"

// DefaultPrefix is prepended to bare national numbers. For Argentina this is
// the country code plus the mobile "9" token that WhatsApp numbers carry.
const DefaultPrefix = "549"

var nonDigitPattern = regexp.MustCompile(`[^\d+]`)

// Normalizer converts provider, CRM and manually entered phone formats to
// E.164. The normalized form is the conversation key and the CRM dedup key,
// so every boundary must funnel numbers through it.
type Normalizer struct {
	region string
	prefix string
}

// NewNormalizer creates a normalizer for the given default region
// (ISO 3166-1 alpha-2) and default prefix for bare national numbers.
func NewNormalizer(region, prefix string) *Normalizer {
	if region == "" {
		region = DefaultRegion
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Normalizer{region: region, prefix: strings.TrimPrefix(prefix, "+")}
}

// Normalize converts the input to E.164 or returns a validation error.
//
//	"whatsapp:+5492901234567" -> "+5492901234567"
//	"+54 9 2901 234567"       -> "+5492901234567"
//	"2901234567"              -> "+5492901234567" (default prefix 549)
func (n *Normalizer) Normalize(input string) (string, error) {
	cleaned := Clean(input)
	if cleaned == "" {
		return "", apperr.Validation("phone number is empty")
	}
	if strings.Count(cleaned, "+") > 1 || (strings.Contains(cleaned, "+") && !strings.HasPrefix(cleaned, "+")) {
		return "", apperr.Validation("malformed phone number: " + input)
	}

	candidate := n.assemble(cleaned)

	digits := strings.TrimPrefix(candidate, "+")
	if len(digits) < 8 || len(digits) > 15 {
		return "", apperr.Validation("phone number has invalid length: " + input)
	}

	// Let libphonenumber canonicalize when its metadata recognizes the
	// number; otherwise keep the assembled E.164 candidate (provider webhook
	// numbers are pre-validated upstream, and rejecting them would drop
	// inbound traffic).
	if number, err := phonenumbers.Parse(candidate, n.region); err == nil && phonenumbers.IsValidNumber(number) {
		return phonenumbers.Format(number, phonenumbers.E164), nil
	}

	return candidate, nil
}

func (n *Normalizer) assemble(cleaned string) string {
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}

	// Old-style local format carries a leading zero.
	cleaned = strings.TrimPrefix(cleaned, "0")

	// Already includes the default prefix, just missing the plus sign.
	if strings.HasPrefix(cleaned, n.prefix) {
		return "+" + cleaned
	}

	return "+" + n.prefix + cleaned
}

// SearchVariants returns the lookup forms under which an already normalized
// E.164 number may have been stored by upstream systems: E.164 itself, the
// bare digits, the national number, and the zero-prefixed national number.
// CRM records created before normalization was enforced can carry any of
// them.
func (n *Normalizer) SearchVariants(e164 string) []string {
	digits := strings.TrimPrefix(e164, "+")
	variants := []string{e164, digits}

	if national := strings.TrimPrefix(digits, n.prefix); national != digits && national != "" {
		variants = append(variants, national, "0"+national)
	}

	return variants
}

// IsValid reports whether the input normalizes to a plausible E.164 number.
func (n *Normalizer) IsValid(input string) bool {
	_, err := n.Normalize(input)
	return err == nil
}

// Clean strips the provider channel prefix and collapses separators without
// validating. Used where a best-effort key is acceptable (log fields, cache
// lookups on already-normalized values).
func Clean(input string) string {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimPrefix(trimmed, "whatsapp:")
	return nonDigitPattern.ReplaceAllString(trimmed, "")
}
