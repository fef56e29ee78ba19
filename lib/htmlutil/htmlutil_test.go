package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const page = `<html>
<head>
	<script src="/_next/static/chunks/main.js"></script>
	<script>inline()</script>
	<script src="https://cdn.example.com/vendor.js"></script>
	<script src="  "></script>
</head>
<body><p>  Hello
	<b>world</b>  </p></body>
</html>`

func TestScriptSources(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	base, err := url.Parse("https://www.youtube-transcript.io/")
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, []string{
		"https://www.youtube-transcript.io/_next/static/chunks/main.js",
		"https://cdn.example.com/vendor.js",
	}, ScriptSources(context.Background(), doc, base))
}

func TestCleanText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	p := doc.Find("p").Nodes[0]
	require.Equal(t, "Hello world", CleanText(p))
	require.Equal(t, "  Hello\n\tworld  ", GetText(p))
}

func TestFragmentText(t *testing.T) {
	cases := []struct {
		fragment string
		expected string
	}{
		{"we&#39;re no strangers", "we're no strangers"},
		{"<i>[Music]</i> never gonna", "[Music] never gonna"},
		{"rock &amp; roll\n  all night", "rock & roll all night"},
		{"  plain text ", "plain text"},
		{"", ""},
		{"<b>unclosed", "unclosed"},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, FragmentText(c.fragment), c.fragment)
	}
}
