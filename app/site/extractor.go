package site

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

const (
	maxTitleLength       = 300
	maxDescriptionLength = 500
)

var (
	titleSelectors       = []string{"h1, h2, h3, h4", "[class*=title], [class*=name], [itemprop=name]", "a"}
	priceSelectors       = "[class*=price], [itemprop=price], [class*=cost], [class*=fee]"
	locationSelectors    = "[class*=location], [class*=address], address, [itemprop=address], [class*=city]"
	descriptionSelectors = []string{"[class*=desc], [class*=summary], [class*=excerpt]", "p"}
)

// Extractor turns a fetched document into listing items. It performs no I/O.
type Extractor struct {
	selectors *SelectorCache
	feeds     *FeedParser
	policy    *bluemonday.Policy
}

func NewExtractor(selectors *SelectorCache) *Extractor {
	return &Extractor{
		selectors: selectors,
		feeds:     NewFeedParser(),
		policy:    bluemonday.StrictPolicy(),
	}
}

// Run extracts items from data using the strategy for category. pageURL is
// used to resolve relative links and may be empty.
func (e *Extractor) Run(data []byte, pageURL string, category Category) ([]Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnparseable)
	}
	if contentType := http.DetectContentType(data); !strings.HasPrefix(contentType, "text/") {
		return nil, fmt.Errorf("%w: detected %s", ErrUnparseable, contentType)
	}

	s := strategyFor(category)

	if gofeed.DetectFeedType(bytes.NewReader(data)) != gofeed.FeedTypeUnknown {
		if items, err := e.feeds.Parse(data, e.clean); err == nil {
			return limit(items, s.limit), nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	var base *url.URL
	if pageURL != "" {
		base, _ = url.Parse(pageURL)
	}

	items := make([]Item, 0)
	e.containers(doc, category, s).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		if item, ok := e.extractItem(block, base, s); ok {
			items = append(items, item)
		}
		return len(items) < s.limit
	})

	return items, nil
}

// containers returns the outermost matches of the first selector that
// matches anything.
func (e *Extractor) containers(doc *goquery.Document, category Category, s strategy) *goquery.Selection {
	candidates := s.containers
	if e.selectors != nil {
		if overrides := e.selectors.Containers(category); len(overrides) > 0 {
			candidates = append(append([]string{}, overrides...), candidates...)
		}
	}

	for _, selector := range candidates {
		matches := doc.Find(selector)
		if matches.Length() == 0 {
			continue
		}
		outer := matches.FilterFunction(func(_ int, sel *goquery.Selection) bool {
			return sel.ParentsFiltered(selector).Length() == 0
		})
		if outer.Length() > 0 {
			return outer
		}
	}

	return doc.Selection.Slice(0, 0)
}

func (e *Extractor) extractItem(block *goquery.Selection, base *url.URL, s strategy) (Item, bool) {
	titleSel, title := findTitle(block)
	if title == "" {
		return Item{}, false
	}

	item := Item{
		Title: truncate(title, maxTitleLength),
		URL:   itemLink(block, titleSel, base),
	}

	if text := firstText(block, priceSelectors); text != "" {
		if price, ok := ParsePrice(text); ok {
			item.Price = &price
		}
	}

	item.Location = firstText(block, locationSelectors)

	for _, selector := range descriptionSelectors {
		var description string
		block.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			inner, _ := sel.Html()
			description = e.clean(inner)
			return description == "" || description == title
		})
		if description != "" && description != title {
			item.Description = truncate(description, maxDescriptionLength)
			break
		}
	}

	if img := block.Find("img").First(); img.Length() > 0 {
		for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
			if src, ok := img.Attr(attr); ok {
				if resolved := resolve(base, src); resolved != "" {
					item.Images = []string{resolved}
					break
				}
			}
		}
	}

	if s.metadata != nil {
		item.Metadata = s.metadata(block, blockText(block))
	}

	return item, true
}

// clean strips markup from an HTML fragment and collapses whitespace.
func (e *Extractor) clean(fragment string) string {
	return collapse(html.UnescapeString(e.policy.Sanitize(fragment)))
}

func findTitle(block *goquery.Selection) (*goquery.Selection, string) {
	for _, selector := range titleSelectors {
		var (
			found *goquery.Selection
			title string
		)
		block.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			title = collapse(sel.Text())
			found = sel
			return title == ""
		})
		if title != "" {
			return found, title
		}
	}
	return nil, ""
}

func itemLink(block, title *goquery.Selection, base *url.URL) string {
	var candidates []*goquery.Selection
	if title != nil {
		candidates = append(candidates, title.Closest("a[href]"), title.Find("a[href]"))
	}
	if goquery.NodeName(block) == "a" {
		candidates = append(candidates, block)
	}
	candidates = append(candidates, block.Find("a[href]"))

	for _, sel := range candidates {
		href, ok := sel.First().Attr("href")
		if !ok {
			continue
		}
		if link := resolve(base, href); link != "" {
			return link
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "#" || strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

func limit(items []Item, n int) []Item {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
