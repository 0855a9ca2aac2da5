package capture

import "regexp"

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// ExtractEmail returns the first email address found in free text.
func ExtractEmail(text string) (string, bool) {
	match := emailPattern.FindString(text)
	return match, match != ""
}
