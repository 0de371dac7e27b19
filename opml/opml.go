// Package opml provides OPML import and export of feed sources.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/mfriesen/newswatch/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements (feeds).
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or grouping in OPML.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and extracts feed sources. Imported feeds
// start out active.
func Parse(r io.Reader) ([]*model.FeedSource, error) {
	var doc OPML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	return extractFeeds(doc.Body.Outlines), nil
}

// extractFeeds recursively extracts feed sources from outlines.
func extractFeeds(outlines []Outline) []*model.FeedSource {
	var feeds []*model.FeedSource

	for _, outline := range outlines {
		// If this outline has an xmlUrl, it's a feed
		if outline.XMLUrl != "" {
			feed := &model.FeedSource{
				URL:    outline.XMLUrl,
				Name:   outline.Title,
				Active: true,
			}

			// Fall back to text, then URL, if the title is empty
			if feed.Name == "" {
				feed.Name = outline.Text
			}
			if feed.Name == "" {
				feed.Name = outline.XMLUrl
			}

			feeds = append(feeds, feed)
		}

		if len(outline.Outlines) > 0 {
			feeds = append(feeds, extractFeeds(outline.Outlines)...)
		}
	}

	return feeds
}

// Generate writes an OPML document for the given feed sources.
func Generate(w io.Writer, feeds []*model.FeedSource) error {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "newswatch feed sources",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: []Outline{},
		},
	}

	for _, feed := range feeds {
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Type:   "rss",
			Text:   feed.Name,
			Title:  feed.Name,
			XMLUrl: feed.URL,
		})
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}

	return nil
}
