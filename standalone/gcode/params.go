package gcode

import (
	"errors"
	"math"
	"strconv"
)

// FindParam returns the index of the first parameter letter in text. A
// letter only counts when it starts a token, that is when it is not
// preceded by another letter, and the search stops at a ';' comment. The
// match is case-insensitive.
func FindParam(text string, letter byte) (int, bool) {
	letter = toUpper(letter)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ';' {
			break
		}
		if toUpper(c) != letter {
			continue
		}
		if i > 0 && isLetter(text[i-1]) {
			continue
		}
		return i, true
	}
	return -1, false
}

// HasParam reports whether letter appears as a parameter in text.
func HasParam(text string, letter byte) bool {
	_, ok := FindParam(text, letter)
	return ok
}

// ReadFloat parses the number following the letter at pos. Malformed or
// missing numbers read as 0, as does a negative pos from a failed FindParam.
func ReadFloat(text string, pos int) float64 {
	if pos < 0 {
		return 0
	}
	return readFloat(text, pos+1, len(text))
}

// ReadFloatBeforeE is ReadFloat for host-link lines where an uppercase 'E'
// after the number starts another field. The first 'E' after pos ends the
// number instead of being read as an exponent.
func ReadFloatBeforeE(text string, pos int) float64 {
	if pos < 0 {
		return 0
	}
	end := len(text)
	for i := pos + 1; i < len(text); i++ {
		if text[i] == 'E' {
			end = i
			break
		}
	}
	return readFloat(text, pos+1, end)
}

// ReadLong parses the integer following the letter at pos. Parsing stops
// at the first non-digit, so fractional parts are dropped. Values outside
// the int32 range saturate.
func ReadLong(text string, pos int) int32 {
	start := pos + 1
	if pos < 0 || start > len(text) {
		return 0
	}
	s := text[start:]
	n := scanInt(s)
	if n == 0 {
		return 0
	}
	v, err := strconv.ParseInt(trimBlanks(s[:n]), 10, 32)
	if err != nil {
		// ParseInt returns the saturated value on range errors
		if errors.Is(err, strconv.ErrRange) {
			return int32(v)
		}
		return 0
	}
	return int32(v)
}

// ReadInt16 reads the integer following the letter at pos, truncated to 16 bits.
func ReadInt16(text string, pos int) int16 {
	return int16(ReadLong(text, pos))
}

// ReadUint8 reads the integer following the letter at pos, truncated to 8 bits.
func ReadUint8(text string, pos int) uint8 {
	return uint8(ReadLong(text, pos))
}

func readFloat(text string, start, end int) float64 {
	if start < 0 || start > end || end > len(text) {
		return 0
	}
	s := text[start:end]
	n := scanFloat(s)
	if n == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(trimBlanks(s[:n]), 64)
	if err != nil {
		if math.IsInf(v, 0) {
			return v
		}
		return 0
	}
	return v
}

// scanInt returns the length of the longest prefix of s that reads as a
// decimal integer, leading blanks included. It returns 0 when there is none.
func scanInt(s string) int {
	i := skipBlanks(s, 0)
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start {
		return 0
	}
	return i
}

// scanFloat returns the length of the longest prefix of s that reads as a
// decimal floating point literal with an optional exponent.
func scanFloat(s string) int {
	i := skipBlanks(s, 0)
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}

	// Exponent only counts when digits follow it
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '-' || s[j] == '+') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func skipBlanks(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func trimBlanks(s string) string {
	return s[skipBlanks(s, 0):]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isLetter checks if a byte is a letter
func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// toUpper converts a byte to uppercase
func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
