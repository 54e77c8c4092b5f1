package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// maxDiffBytes caps the diff recorded in activity metadata.
const maxDiffBytes = 4096

// unifiedDiff renders a unified diff of a text edit for the activity
// feed. Binary content or identical inputs yield "".
func unifiedDiff(previous, current []byte) string {
	if !utf8.Valid(previous) || !utf8.Valid(current) {
		return ""
	}
	if string(previous) == string(current) {
		return ""
	}
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(previous)),
		B:        difflib.SplitLines(string(current)),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	}
	res, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return ""
	}
	res = strings.TrimSpace(res)
	if len(res) > maxDiffBytes {
		res = res[:maxDiffBytes]
	}
	return res
}
