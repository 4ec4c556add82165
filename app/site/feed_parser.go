package site

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedParser turns RSS/Atom/JSON feed documents into items.
type FeedParser struct {
	gofeedParser *gofeed.Parser
}

func NewFeedParser() *FeedParser {
	return &FeedParser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Parse returns the titled entries of a feed. clean strips markup from
// entry descriptions.
func (p *FeedParser) Parse(data []byte, clean func(string) string) ([]Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		title := collapse(entry.Title)
		if title == "" {
			continue
		}

		item := Item{
			Title:       truncate(title, maxTitleLength),
			URL:         strings.TrimSpace(entry.Link),
			Description: truncate(clean(coalesce(entry.Description, entry.Content)), maxDescriptionLength),
		}

		if image := feedImage(entry); image != "" {
			item.Images = []string{image}
		}

		if entry.PublishedParsed != nil {
			item.Metadata = map[string]string{"published": entry.PublishedParsed.UTC().Format(time.RFC3339)}
		}
		if len(entry.Categories) > 0 {
			if item.Metadata == nil {
				item.Metadata = make(map[string]string)
			}
			item.Metadata["categories"] = strings.Join(entry.Categories, ", ")
		}

		items = append(items, item)
	}

	return items, nil
}

func feedImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enclosure := range entry.Enclosures {
		if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") {
			return enclosure.URL
		}
	}
	return ""
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
