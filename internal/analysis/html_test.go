package analysis

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html>
<head><title>  Widget Store </title></head>
<body>
	<h1>Widgets</h1>
	<h2>Deals</h2>
	<a href="/cart">Cart</a>
	<a>No href</a>
	<img src="a.png"><img src="b.png">
	<form action="/search"><input name="q"></form>
	<h3>Footer</h3>
</body>
</html>`

func fixedAnalyzer() *HTMLAnalyzer {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &HTMLAnalyzer{now: func() time.Time { return at }}
}

func TestHTMLAnalyzer_CountsStructure(t *testing.T) {
	rec, err := fixedAnalyzer().Process("cmd-1", Page{
		Markup: samplePage,
		Text:   "Widgets Deals Cart",
		URL:    "https://shop.example.com",
		Title:  "Widget Store",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "cmd-1", rec.CommandID)
	assert.Equal(t, "https://shop.example.com", rec.URL)
	assert.Equal(t, "Widget Store", rec.OriginalTitle)
	assert.Equal(t, "Widget Store", rec.DerivedTitle)
	assert.Equal(t, len([]rune(samplePage)), rec.MarkupSize)
	assert.Equal(t, 18, rec.TextSize)
	assert.Equal(t, 2, rec.LinkCount)
	assert.Equal(t, 2, rec.ImageCount)
	assert.Equal(t, 1, rec.FormCount)
	assert.Equal(t, 3, rec.HeadingCount)
	assert.Equal(t, []string{"Widgets", "Deals", "Footer"}, rec.FirstHeadings)

	require.Len(t, rec.FirstLinks, 2)
	assert.Equal(t, "Cart", rec.FirstLinks[0].Text)
	require.NotNil(t, rec.FirstLinks[0].Href)
	assert.Equal(t, "/cart", *rec.FirstLinks[0].Href)
	assert.Nil(t, rec.FirstLinks[1].Href)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rec.ProcessedAt)
}

func TestHTMLAnalyzer_EmptyMarkupIsNoop(t *testing.T) {
	rec, err := fixedAnalyzer().Process("cmd-1", Page{Text: "something"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestHTMLAnalyzer_MissingTitle(t *testing.T) {
	rec, err := fixedAnalyzer().Process("cmd-1", Page{Markup: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "No title found", rec.DerivedTitle)
	assert.Empty(t, rec.FirstHeadings)
	assert.Empty(t, rec.FirstLinks)
}

func TestHTMLAnalyzer_LimitsAndTruncation(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString("<h2>" + strings.Repeat("h", 150) + "</h2>")
		b.WriteString(`<a href="#">` + strings.Repeat("é", 80) + "</a>")
	}

	rec, err := fixedAnalyzer().Process("cmd-1", Page{Markup: b.String()})
	require.NoError(t, err)

	assert.Equal(t, 8, rec.HeadingCount)
	assert.Equal(t, 8, rec.LinkCount)
	require.Len(t, rec.FirstHeadings, 5)
	require.Len(t, rec.FirstLinks, 5)
	assert.Len(t, []rune(rec.FirstHeadings[0]), 100)
	assert.Len(t, []rune(rec.FirstLinks[0].Text), 50)
}

func TestPageFromResult(t *testing.T) {
	raw := json.RawMessage(`{"message":"Captured","html_content":"<p>x</p>","text_content":"x","url":"u","title":"t","size":8}`)
	page, err := PageFromResult(raw)
	require.NoError(t, err)
	assert.Equal(t, Page{Markup: "<p>x</p>", Text: "x", URL: "u", Title: "t"}, page)

	_, err = PageFromResult(json.RawMessage(`"just a string"`))
	assert.Error(t, err)
}

func TestErrorRecord(t *testing.T) {
	at := time.Unix(100, 0)
	rec := ErrorRecord("cmd-9", errors.New("boom"), at)
	assert.Equal(t, "cmd-9", rec.CommandID)
	assert.Equal(t, "Failed to process HTML content: boom", rec.Error)
	assert.Equal(t, at, rec.ProcessedAt)
}
