package database

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeStudentName trims surrounding whitespace, collapses inner runs of
// whitespace and converts the name to Unicode NFC, so "José" typed with a
// combining accent and with a precomposed é land on the same roster row.
func NormalizeStudentName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return norm.NFC.String(name)
}
