// Package license implements the license key format: generation of
// tier-coded keys and offline validation of their shape and checksum.
//
// Keys look like MCP-1.0-STAR-GK7MNPQRT2WX-0H4B2K. The checksum is a
// simple rolling hash, enough to catch typos and truncation; it is not
// collision resistant and must never be treated as a security boundary.
// Possession of a well-formed key proves nothing until the verification
// endpoint has checked it against the record store.
package license

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"mcplabs.co.uk/licensing/models"
)

const (
	prefix  = "MCP"
	version = "1.0"

	// 32 symbols; excludes 0/O and 1/I so keys survive being read aloud
	// or retyped from an email.
	alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	randomLength   = 12
	checksumLength = 6
)

var keyPattern = regexp.MustCompile(`^MCP-1\.0-[A-Z]{4}-[A-Z0-9]{12}-[A-Z0-9]{6}$`)

// Generate mints a new key for the given tier. The random body is drawn
// from crypto/rand; len(alphabet) divides 256 so the byte reduction is
// unbiased.
func Generate(tier models.Tier) (string, error) {
	if !tier.Valid() {
		return "", fmt.Errorf("unknown tier %q", tier)
	}

	buf := make([]byte, randomLength)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	body := make([]byte, randomLength)
	for i, b := range buf {
		body[i] = alphabet[int(b)%len(alphabet)]
	}

	base := fmt.Sprintf("%s-%s-%s-%s", prefix, version, tier.Code(), body)
	return base + "-" + Checksum(base), nil
}

// Checksum hashes input with a shift-and-subtract accumulator over a
// wrapping 32-bit register and renders the absolute value in base 36,
// truncated and zero-padded to exactly six characters.
func Checksum(input string) string {
	var h int32
	for _, c := range input {
		h = h<<5 - h + int32(c)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}

	s := strings.ToUpper(strconv.FormatInt(v, 36))
	if len(s) > checksumLength {
		s = s[:checksumLength]
	}
	for len(s) < checksumLength {
		s = "0" + s
	}
	return s
}

// Validate reports whether key has the right shape and a checksum that
// matches its preceding segments. Malformed input is false, never an
// error; callers cannot distinguish a bad shape from a bad checksum.
func Validate(key string) bool {
	if !keyPattern.MatchString(key) {
		return false
	}

	idx := strings.LastIndex(key, "-")
	base, checksum := key[:idx], key[idx+1:]
	return checksum == Checksum(base)
}
