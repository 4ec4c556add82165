package site

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	genericLimit  = 20
	categoryLimit = 200
)

type metadataFunc func(block *goquery.Selection, text string) map[string]string

type strategy struct {
	name       string
	containers []string
	limit      int
	metadata   metadataFunc
}

var (
	bedroomsRe  = regexp.MustCompile(`(?i)(\d+)\s*(?:bedrooms?|beds?|bd|br)\b`)
	bathroomsRe = regexp.MustCompile(`(?i)(\d+(?:\.\d)?)\s*(?:bathrooms?|baths?|ba)\b`)
	areaRe      = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(sq\.?\s*ft|sqft|ft²|sq\.?\s*m|sqm|m²|m2)`)
	gradesRe    = regexp.MustCompile(`(?i)\bgrades?\s*:?\s*([a-z0-9]+(?:\s*(?:-|–|to)\s*[a-z0-9]+)?)`)
	ratingRe    = regexp.MustCompile(`(?i)\b(?:rating|rated)\s*:?\s*(\d+(?:\.\d+)?(?:\s*/\s*\d+)?)`)
	phoneRe     = regexp.MustCompile(`\+?\d[\d\s().-]{6,}\d`)
	utilityRe   = regexp.MustCompile(`(?i)\b(electricity|gas|water|broadband|internet|energy|solar|mobile)\b`)
)

// strategyFor maps every category to its extraction strategy. Unknown
// categories use the generic fallback.
func strategyFor(c Category) strategy {
	switch c {
	case CategoryProperties:
		return strategy{
			name: "properties",
			containers: []string{
				"[class*=property-card]", "[data-testid*=property]", "[class*=property]",
				"[class*=listing]", "article", "[class*=card]",
			},
			limit:    categoryLimit,
			metadata: propertyMetadata,
		}
	case CategoryLegal:
		return strategy{
			name: "legal",
			containers: []string{
				"[class*=lawyer]", "[class*=attorney]", "[class*=solicitor]", "[class*=law-firm]",
				"[class*=listing]", "[class*=result]", "article", "[class*=card]",
			},
			limit: categoryLimit,
			metadata: func(block *goquery.Selection, text string) map[string]string {
				return collect(
					"practice_area", firstText(block, "[class*=practice], [class*=specialt], [class*=area-of]"),
					"phone", phone(block, text),
				)
			},
		}
	case CategoryUtilities:
		return strategy{
			name: "utilities",
			containers: []string{
				"[class*=tariff]", "[class*=plan]", "[class*=offer]", "[class*=deal]",
				"[class*=provider]", "article", "[class*=card]",
			},
			limit: categoryLimit,
			metadata: func(_ *goquery.Selection, text string) map[string]string {
				return collect("provider_type", strings.ToLower(firstMatch(utilityRe, text)))
			},
		}
	case CategoryMovers:
		return strategy{
			name: "movers",
			containers: []string{
				"[class*=mover]", "[class*=removal]", "[class*=company]",
				"[class*=listing]", "[class*=result]", "article", "[class*=card]",
			},
			limit: categoryLimit,
			metadata: func(block *goquery.Selection, text string) map[string]string {
				return collect(
					"service_area", firstText(block, "[class*=service-area], [class*=coverage], [class*=region]"),
					"phone", phone(block, text),
				)
			},
		}
	case CategorySchools:
		return strategy{
			name: "schools",
			containers: []string{
				"[class*=school]", "[class*=institution]",
				"[class*=listing]", "[class*=result]", "article", "[class*=card]",
			},
			limit: categoryLimit,
			metadata: func(_ *goquery.Selection, text string) map[string]string {
				return collect(
					"grades", firstMatch(gradesRe, text),
					"rating", firstMatch(ratingRe, text),
				)
			},
		}
	case CategoryHealthcare:
		return strategy{
			name: "healthcare",
			containers: []string{
				"[class*=doctor]", "[class*=clinic]", "[class*=practitioner]", "[class*=provider]",
				"[class*=listing]", "[class*=result]", "article", "[class*=card]",
			},
			limit: categoryLimit,
			metadata: func(block *goquery.Selection, text string) map[string]string {
				return collect(
					"specialty", firstText(block, "[class*=specialt], [class*=speciality], [class*=department]"),
					"phone", phone(block, text),
				)
			},
		}
	default:
		return strategy{
			name: "generic",
			containers: []string{
				"article", "[class*=listing]", "[class*=card]", "[class*=item]", "[class*=result]", "li",
			},
			limit: genericLimit,
		}
	}
}

func propertyMetadata(_ *goquery.Selection, text string) map[string]string {
	area := ""
	if m := areaRe.FindStringSubmatch(text); m != nil {
		area = m[1] + " " + strings.Join(strings.Fields(m[2]), "")
	}
	return collect(
		"bedrooms", firstMatch(bedroomsRe, text),
		"bathrooms", firstMatch(bathroomsRe, text),
		"area", area,
	)
}

func phone(block *goquery.Selection, text string) string {
	if href, ok := block.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		return strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
	}
	return strings.TrimSpace(phoneRe.FindString(text))
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstText(block *goquery.Selection, selector string) string {
	var out string
	block.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = collapse(s.Text())
		return out == ""
	})
	return out
}

// collect builds a metadata map from key/value pairs, skipping empty values.
func collect(pairs ...string) map[string]string {
	var m map[string]string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

// blockText joins the text nodes under block with single spaces, so that
// adjacent elements such as <span>3 beds</span><span>2 baths</span> stay
// separate words. Script and style contents are skipped.
func blockText(block *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range block.Nodes {
		walk(n)
	}
	return collapse(b.String())
}
