package lockmgr

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	holderIDLength = 8
)

// foldName maps a name to its mapping key. Two names that differ only in
// letter case map to the same key. Bytes that are not valid UTF-8 are kept
// as they are, so distinct invalid names stay distinct keys.
func foldName(name string) string {
	isASCII, hasLower := true, false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= utf8.RuneSelf {
			isASCII = false
			break
		}
		hasLower = hasLower || ('a' <= c && c <= 'z')
	}
	if isASCII {
		if !hasLower {
			return name
		}
		return strings.ToUpper(name)
	}

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteByte(name[i])
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		i += size
	}
	return b.String()
}

// generateHolderID creates a new random holder ID (hex encoded).
func generateHolderID() string {
	randomBytes := make([]byte, holderIDLength)
	if _, err := rand.Read(randomBytes); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(randomBytes)
}
