package site

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/unicode/norm"
)

type Category string

const (
	CategoryProperties Category = "properties"
	CategoryLegal      Category = "legal"
	CategoryUtilities  Category = "utilities"
	CategoryMovers     Category = "movers"
	CategorySchools    Category = "schools"
	CategoryHealthcare Category = "healthcare"
	CategoryOther      Category = "other"
)

var Categories = []Category{
	CategoryProperties,
	CategoryLegal,
	CategoryUtilities,
	CategoryMovers,
	CategorySchools,
	CategoryHealthcare,
	CategoryOther,
}

var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrInvalidCategory = errors.New("invalid category")
	ErrUnparseable     = errors.New("document cannot be parsed as HTML")
)

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryOther, nil
	}
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Noun is the plural used in user-facing messages.
func (c Category) Noun() string {
	switch c {
	case CategoryProperties:
		return "properties"
	case CategoryLegal:
		return "legal services"
	case CategoryUtilities:
		return "utility offers"
	case CategoryMovers:
		return "movers"
	case CategorySchools:
		return "schools"
	case CategoryHealthcare:
		return "healthcare providers"
	default:
		return "items"
	}
}

// Item is a single listing extracted from a page.
type Item struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url,omitempty"`
	Price       *float64          `json:"price,omitempty"`
	Location    string            `json:"location,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Key identifies an item across scrapes by its normalized title and URL.
func (i Item) Key() string {
	title := strings.ToLower(norm.NFKC.String(strings.TrimSpace(i.Title)))
	return shortHash(title + "|" + i.URL)
}

// Fingerprint changes when the visible details of an item change.
func (i Item) Fingerprint() string {
	price := ""
	if i.Price != nil {
		price = strconv.FormatFloat(*i.Price, 'f', -1, 64)
	}
	return shortHash(price + "|" + i.Location + "|" + i.Description)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	// Truncated is set when the body exceeded the fetcher's size cap and
	// Body holds only its first part.
	Truncated   bool
	FetchedAt   time.Time
}

// ValidateURL accepts well-formed absolute http(s) URLs. The returned URL has
// a lower-case scheme and host so that equal addresses compare equal.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q must be an absolute http(s) URL", ErrInvalidURL, raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u, nil
}

// HostKey groups URLs by registrable domain so that sub-domains of one site
// share a courtesy budget.
func HostKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}
