package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// URLs are matched on already escaped text, so "&amp;" may appear inside a query
	// string while other entities (quotes) terminate the link.
	linkRegex       = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<&]+(?:&amp;[^\s<&]+)*`)
	paragraphRegex  = regexp.MustCompile(`\n\n+`)
	controlRegex    = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	nonSlugRegex    = regexp.MustCompile(`[^a-z0-9\-_]+`)
	repeatDashRegex = regexp.MustCompile(`-{2,}`)
)

// trailing punctuation that belongs to the sentence rather than the link
const linkTrailers = ".,;:!?)]'"

// FormatMessageHTML renders a raw message body as safe HTML: the text is escaped,
// bare URLs become links opening in a new window, and blank lines split paragraphs.
func FormatMessageHTML(body string) string {
	escaped := html.EscapeString(body)
	linked := AutoLink(escaped)
	return SimpleFormat(linked)
}

// AutoLink wraps http(s) and www. URLs found in escaped text in anchor tags
func AutoLink(escaped string) string {
	return linkRegex.ReplaceAllStringFunc(escaped, func(match string) string {
		link := strings.TrimRight(match, linkTrailers)
		tail := match[len(link):]
		href := link
		if strings.HasPrefix(strings.ToLower(href), "www.") {
			href = "http://" + href
		}
		return `<a href="` + href + `" target="_blank" rel="nofollow">` + link + `</a>` + tail
	})
}

// SimpleFormat wraps paragraphs in <p> and turns single newlines into <br />
func SimpleFormat(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Trim(text, "\n")

	paragraphs := paragraphRegex.Split(text, -1)
	for i, p := range paragraphs {
		paragraphs[i] = "<p>" + strings.ReplaceAll(p, "\n", "\n<br />") + "</p>"
	}
	return strings.Join(paragraphs, "\n\n")
}

// Parameterize turns a free-form string into a lower-case URL slug,
// transliterating accented latin letters and collapsing separators to "-".
func Parameterize(input string) string {
	decomposed := norm.NFKD.String(input)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}

	slug := nonSlugRegex.ReplaceAllString(b.String(), "-")
	slug = repeatDashRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// IsBlank reports whether input has no non-whitespace characters
func IsBlank(input string) bool {
	return strings.TrimSpace(input) == ""
}

// SanitizeFilename sanitizes filename input
func SanitizeFilename(filename string) string {
	// Trim whitespace
	filename = strings.TrimSpace(filename)
	// Remove path traversal attempts
	filename = strings.ReplaceAll(filename, "../", "")
	filename = strings.ReplaceAll(filename, "./", "")
	filename = strings.ReplaceAll(filename, "..\\", "")
	filename = strings.ReplaceAll(filename, ".\\", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	// Remove null bytes and control characters
	filename = controlRegex.ReplaceAllString(filename, "")
	return filename
}

// ValidateStringLength checks if the character count is within bounds
func ValidateStringLength(input string, minLen, maxLen int) bool {
	n := utf8.RuneCountInString(input)
	return n >= minLen && n <= maxLen
}
