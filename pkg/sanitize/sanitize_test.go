package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessageHTML_EscapesMarkup(t *testing.T) {
	got := FormatMessageHTML("hello <b>world</b>")

	assert.Equal(t, "<p>hello &lt;b&gt;world&lt;/b&gt;</p>", got)
}

func TestFormatMessageHTML_LinksURLs(t *testing.T) {
	got := FormatMessageHTML("see http://example.com/a?b=1&c=2.")

	assert.Equal(t,
		`<p>see <a href="http://example.com/a?b=1&amp;c=2" target="_blank" rel="nofollow">http://example.com/a?b=1&amp;c=2</a>.</p>`,
		got)
}

func TestAutoLink_WWW(t *testing.T) {
	got := AutoLink("go to www.echowaves.com now")

	assert.Equal(t, `go to <a href="http://www.echowaves.com" target="_blank" rel="nofollow">www.echowaves.com</a> now`, got)
}

func TestAutoLink_StopsAtEscapedQuote(t *testing.T) {
	got := AutoLink("&#34;https://x.io&#34;")

	assert.Equal(t, `&#34;<a href="https://x.io" target="_blank" rel="nofollow">https://x.io</a>&#34;`, got)
}

func TestSimpleFormat(t *testing.T) {
	assert.Equal(t, "<p>a\n<br />b</p>\n\n<p>c</p>", SimpleFormat("a\r\nb\n\n\nc\n"))
	assert.Equal(t, "<p>single</p>", SimpleFormat("single"))
}

func TestParameterize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello-world"},
		{"Café Déjà vu", "cafe-deja-vu"},
		{"  --Go_lang 2.0--", "go_lang-2-0"},
		{"dmitry", "dmitry"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parameterize(tt.in))
		})
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \n\t "))
	assert.False(t, IsBlank(" x "))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "etc_passwd", SanitizeFilename("../etc/passwd"))
	assert.Equal(t, "report.pdf", SanitizeFilename(" report.pdf\x00 "))
}

func TestValidateStringLength_CountsRunes(t *testing.T) {
	assert.True(t, ValidateStringLength("привет мир", 8, 100))
	assert.False(t, ValidateStringLength("short", 8, 100))
}
