package utils

import (
	"strings"
	"unicode"
)

// Keypad bounds shared by pocket depth and mobility entry.
const (
	KeypadMin = 1
	KeypadMax = 15
)

// IsKeypadValue checks a value entered on the numeric keypad.
func IsKeypadValue(v int) bool {
	return v >= KeypadMin && v <= KeypadMax
}

// IsMobilityEntry checks a manually entered mobility value. It accepts the keypad range plus 0,
// which bulk fill and dictation also produce.
func IsMobilityEntry(v int) bool {
	return v == 0 || IsKeypadValue(v)
}

// IsMobilityDegree checks a clinical mobility degree as spoken.
func IsMobilityDegree(v int) bool {
	return v >= 0 && v <= 3
}

// IsPatientID checks an external patient reference: non-empty, no whitespace or control runes,
// at most 64 runes.
func IsPatientID(id string) bool {
	if strings.TrimSpace(id) == "" || len([]rune(id)) > 64 {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
