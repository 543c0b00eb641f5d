package analysis

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// HTMLAnalyzer counts links, images, forms and headings in page markup.
type HTMLAnalyzer struct {
	now func() time.Time
}

// NewHTMLAnalyzer creates an analyzer using the wall clock.
func NewHTMLAnalyzer() *HTMLAnalyzer {
	return &HTMLAnalyzer{now: func() time.Time { return time.Now().UTC() }}
}

var _ Processor = (*HTMLAnalyzer)(nil)

// Process parses the markup and summarises its structure.
func (a *HTMLAnalyzer) Process(commandID string, page Page) (*Record, error) {
	if page.Markup == "" {
		slog.Info("no HTML content received", "command_id", commandID)
		return nil, nil
	}

	doc, err := html.Parse(strings.NewReader(page.Markup))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	rec := &Record{
		CommandID:     commandID,
		URL:           page.URL,
		OriginalTitle: page.Title,
		DerivedTitle:  defaultTitleLabel,
		MarkupSize:    utf8.RuneCountInString(page.Markup),
		TextSize:      utf8.RuneCountInString(page.Text),
		FirstHeadings: []string{},
		FirstLinks:    []Link{},
	}

	titleFound := false
	walk(doc, func(n *html.Node) {
		switch n.Data {
		case "title":
			if !titleFound {
				rec.DerivedTitle = strings.TrimSpace(textContent(n))
				titleFound = true
			}
		case "a":
			rec.LinkCount++
			if len(rec.FirstLinks) < maxLinks {
				rec.FirstLinks = append(rec.FirstLinks, Link{
					Text: truncate(strings.TrimSpace(textContent(n)), linkTextLimit),
					Href: attr(n, "href"),
				})
			}
		case "img":
			rec.ImageCount++
		case "form":
			rec.FormCount++
		case "h1", "h2", "h3", "h4", "h5", "h6":
			rec.HeadingCount++
			if len(rec.FirstHeadings) < maxHeadings {
				rec.FirstHeadings = append(rec.FirstHeadings, truncate(strings.TrimSpace(textContent(n)), headingTextLimit))
			}
		}
	})
	rec.ProcessedAt = a.now()

	slog.Info("HTML content analysed",
		"command_id", commandID,
		"url", rec.URL,
		"original_title", rec.OriginalTitle,
		"derived_title", rec.DerivedTitle,
		"markup_size", rec.MarkupSize,
		"text_size", rec.TextSize,
		"links", rec.LinkCount,
		"images", rec.ImageCount,
		"forms", rec.FormCount,
		"headings", rec.HeadingCount,
	)
	return rec, nil
}

// walk visits element nodes in document order.
func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// textContent concatenates all text below n.
func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

func attr(n *html.Node, key string) *string {
	for _, a := range n.Attr {
		if a.Key == key {
			val := a.Val
			return &val
		}
	}
	return nil
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
