package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title> Sample Page </title><style>.x{color:red}</style></head>
<body>
<script>var hidden = true;</script>
<h1>Heading</h1>
<p>Some body text here.</p>
<a href="/relative">internal</a>
<a href="https://other.example/page#frag">external</a>
<a href="https://other.example/page">duplicate</a>
<a href="mailto:someone@example.org">mail</a>
<a href="#top">anchor</a>
</body>
</html>`

func TestParseExtractsFields(t *testing.T) {
	t.Parallel()

	p := New()
	parsed, err := p.Parse("https://example.org/dir/page", []byte(samplePage))
	require.NoError(t, err)

	require.Equal(t, "Sample Page", parsed.Title)
	require.Contains(t, parsed.Text, "Heading")
	require.Contains(t, parsed.Text, "Some body text here.")
	require.NotContains(t, parsed.Text, "hidden", "script content must be stripped")
	require.NotContains(t, parsed.Text, "color:red", "style content must be stripped")

	require.Equal(t, []string{
		"https://example.org/relative",
		"https://other.example/page",
	}, parsed.Links)
}

func TestParseInvalidBaseURL(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Parse("http://%zz", []byte("<html></html>"))
	require.Error(t, err)
}

func TestParseEmptyBody(t *testing.T) {
	t.Parallel()

	p := New()
	parsed, err := p.Parse("https://example.org", nil)
	require.NoError(t, err)
	require.Empty(t, parsed.Title)
	require.Empty(t, parsed.Links)
}

func TestParseCapsTextSize(t *testing.T) {
	t.Parallel()

	big := "<html><body><p>" + strings.Repeat("word ", 40000) + "</p></body></html>"
	p := New()
	parsed, err := p.Parse("https://example.org", []byte(big))
	require.NoError(t, err)
	require.LessOrEqual(t, len(parsed.Text), maxTextBytes)
}
