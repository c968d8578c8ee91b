package shortener

import (
	"crypto/md5" //nolint:gosec // not used for security, only code derivation
	"encoding/hex"
)

// CodeLength is the number of hex characters in a generated short code.
const CodeLength = 6

// GenerateCode derives a short code from the URL. The mapping is stable:
// the same URL always yields the same code.
func GenerateCode(originalURL string) string {
	sum := md5.Sum([]byte(originalURL)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:CodeLength]
}
