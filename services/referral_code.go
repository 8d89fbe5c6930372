package services

import (
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// No 0/O or 1/I so codes survive being read aloud or copied from a screenshot.
const referralCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const ReferralCodeLength = 8

// Vanity codes such as BITHRAH2024 are seeded by hand, so lookups accept
// any uppercase alphanumeric token up to the column width.
var referralCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,16}$`)

// GenerateReferralCode returns a fresh URL-safe code. Uniqueness is checked
// by the caller against the database.
func GenerateReferralCode() (string, error) {
	return gonanoid.Generate(referralCodeAlphabet, ReferralCodeLength)
}

// NormalizeReferralCode trims and upper-cases a code taken from a form or a
// ?ref= query parameter. Malformed input normalizes to "".
func NormalizeReferralCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !referralCodePattern.MatchString(code) {
		return ""
	}
	return code
}
