package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/cases"
)

var attributionPattern = regexp.MustCompile(`^\s*\[[^\[\]\n]*\]\s*`)

// stripAttribution removes a leading "[Name at time]" header the model copied from its input.
func stripAttribution(s string) string {
	return strings.TrimSpace(attributionPattern.ReplaceAllString(s, ""))
}

// isAbstention reports whether s is the abstain keyword, ignoring case and punctuation.
func isAbstention(s string) bool {
	folded := cases.Fold().String(s)
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String()) == AbstainKeyword
}

// decodeEscapes turns literal escape sequences the model emitted (\n, \t, \", \uXXXX)
// into the characters they name. Unknown sequences are left as written.
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		case 'u':
			r, n := decodeUnicodeEscape(s[i:])
			if n == 0 {
				b.WriteByte(c)
				continue
			}
			b.WriteRune(r)
			i += n - 1
			continue
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}

// decodeUnicodeEscape decodes a \uXXXX sequence, or a surrogate pair of them,
// at the start of s. It returns the rune and the bytes consumed, or 0 on no match.
func decodeUnicodeEscape(s string) (rune, int) {
	first, ok := hex4(s)
	if !ok {
		return 0, 0
	}
	r := rune(first)
	if utf16.IsSurrogate(r) {
		if second, ok := hex4(s[6:]); ok {
			if pair := utf16.DecodeRune(r, rune(second)); pair != unicode.ReplacementChar {
				return pair, 12
			}
		}
		return unicode.ReplacementChar, 6
	}
	return r, 6
}

func hex4(s string) (uint64, bool) {
	if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:6], 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}
