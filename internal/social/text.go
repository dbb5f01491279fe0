package social

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// TwitterURLLength is the fixed weight t.co assigns to every link.
const TwitterURLLength = 23

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// TwitterLength counts characters the way Twitter does for the limit check:
// every http(s) URL counts as TwitterURLLength regardless of its real length.
func TwitterLength(text string) int {
	n := utf8.RuneCountInString(text)
	for _, u := range urlPattern.FindAllString(text, -1) {
		n += TwitterURLLength - utf8.RuneCountInString(u)
	}
	return n
}

// RuneLength is the raw character count.
func RuneLength(text string) int {
	return utf8.RuneCountInString(text)
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
