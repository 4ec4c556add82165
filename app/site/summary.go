package site

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-shiori/go-readability"
)

// PageSummary is the readable headline of a fetched page.
type PageSummary struct {
	Title    string `json:"title,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	SiteName string `json:"site_name,omitempty"`
}

type Summarizer struct{}

func NewSummarizer() *Summarizer {
	return &Summarizer{}
}

func (s *Summarizer) Run(data []byte, pageURL string) (*PageSummary, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("HTML data is empty")
	}

	var base *url.URL
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page URL: %w", err)
		}
		base = u
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return nil, fmt.Errorf("failed to extract summary: %w", err)
	}

	summary := &PageSummary{
		Title:    collapse(article.Title),
		Excerpt:  truncate(collapse(article.Excerpt), maxDescriptionLength),
		SiteName: collapse(article.SiteName),
	}
	if summary.Title == "" && summary.Excerpt == "" {
		return nil, fmt.Errorf("no summary extracted from HTML data")
	}

	slog.Debug("Page summary extracted", "title", summary.Title, "site_name", summary.SiteName)

	return summary, nil
}
