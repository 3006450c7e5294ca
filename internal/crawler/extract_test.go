package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<title> Physics Dept </title>
<meta name="description" content="  All about physics ">
</head><body>
<h1>Welcome</h1><h2>   </h2><h3>Research Areas</h3><h4>Ignored</h4>
<p>First paragraph</p>
<a href="/b">B</a>
<a href="a">A</a>
<a href="https://other.org/x">X</a>
<a href="/b">duplicate</a>
<a>no href</a>
</body></html>`

	content, err := ParsePage(html, "https://example.edu/dept/")
	require.NoError(t, err)
	require.Equal(t, "Physics Dept", content.Title)
	require.Equal(t, "All about physics", content.Description)
	require.Equal(t, []string{"Welcome", "Research Areas"}, content.Headings)
	require.Equal(t, []string{
		"https://example.edu/b",
		"https://example.edu/dept/a",
		"https://other.org/x",
	}, content.Links)
}

func TestParsePageParagraphFallback(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", MaxDescriptionRunes+50)
	html := "<html><body><p>  " + long + "  </p><p>second</p></body></html>"

	content, err := ParsePage(html, "https://example.edu/")
	require.NoError(t, err)
	require.Empty(t, content.Title)
	require.Equal(t, strings.Repeat("é", MaxDescriptionRunes), content.Description)
	require.Empty(t, content.Headings)
	require.Empty(t, content.Links)
}

func TestParsePageEmptyMetaFallsBack(t *testing.T) {
	t.Parallel()

	html := `<html><head><meta name="description" content=""></head><body><p>Lead text</p></body></html>`
	content, err := ParsePage(html, "https://example.edu/")
	require.NoError(t, err)
	require.Equal(t, "Lead text", content.Description)
}
