// Package analysis derives structural statistics from captured page markup.
package analysis

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	maxHeadings       = 5
	maxLinks          = 5
	headingTextLimit  = 100
	linkTextLimit     = 50
	defaultTitleLabel = "No title found"
)

// Page is the payload an executor returns for a full-page capture.
type Page struct {
	Markup string `json:"html_content"`
	Text   string `json:"text_content"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// PageFromResult decodes a raw result payload into a Page.
func PageFromResult(raw json.RawMessage) (Page, error) {
	var p Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return Page{}, fmt.Errorf("decode page payload: %w", err)
	}
	return p, nil
}

// Link is an anchor found in the markup.
type Link struct {
	Text string  `json:"text"`
	Href *string `json:"href"`
}

// Record is the derived summary of one page capture.
type Record struct {
	CommandID     string    `json:"command_id"`
	URL           string    `json:"url,omitempty"`
	OriginalTitle string    `json:"original_title,omitempty"`
	DerivedTitle  string    `json:"derived_title,omitempty"`
	MarkupSize    int       `json:"markup_size"`
	TextSize      int       `json:"text_size"`
	LinkCount     int       `json:"link_count"`
	ImageCount    int       `json:"image_count"`
	FormCount     int       `json:"form_count"`
	HeadingCount  int       `json:"heading_count"`
	FirstHeadings []string  `json:"first_headings,omitempty"`
	FirstLinks    []Link    `json:"first_links,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
	Error         string    `json:"error,omitempty"`
}

// ErrorRecord builds the record stored when processing fails.
func ErrorRecord(commandID string, err error, now time.Time) Record {
	return Record{
		CommandID:   commandID,
		Error:       fmt.Sprintf("Failed to process HTML content: %v", err),
		ProcessedAt: now,
	}
}

// Processor turns a page capture into a Record. Implementations must not
// depend on connection state. A nil Record with a nil error means the
// payload had nothing to analyse.
type Processor interface {
	Process(commandID string, page Page) (*Record, error)
}
