package utils

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// CreditNumberPrefix starts every credit number
const CreditNumberPrefix = "CR-"

const creditNumberSuffixLen = 12

var creditNumberPattern = regexp.MustCompile(`^CR-[0-9A-F]{12}$`)

// GenerateCreditNumber returns a credit number with a random 48-bit suffix,
// e.g. CR-4F1A09C2B7DE. Uniqueness is enforced by the store; callers retry on
// collision.
func GenerateCreditNumber() string {
	id := uuid.New()
	hex := strings.ReplaceAll(id.String(), "-", "")
	// the first 12 hex digits precede the version nibble and are all random
	return CreditNumberPrefix + strings.ToUpper(hex[:creditNumberSuffixLen])
}

// IsCreditNumber reports whether s has the credit number format
func IsCreditNumber(s string) bool {
	return creditNumberPattern.MatchString(s)
}
