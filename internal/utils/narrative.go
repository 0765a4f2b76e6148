package utils

import (
	"regexp"
	"strings"
)

var (
	fenceMarkerRe  = regexp.MustCompile("```[a-zA-Z]*")
	trailingNoteRe = regexp.MustCompile(`(?s)\n\s*Note:.*$`)
)

// CleanNarrative strips residual markup from a model-produced narrative so it
// reads like a plain appraiser's report: code-fence markers left over from
// partial JSON formatting and trailing "Note:" annotations the model appends
// after the report body.
func CleanNarrative(narrative string) string {
	s := fenceMarkerRe.ReplaceAllString(narrative, "")
	s = trailingNoteRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
