package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"time"

	"github.com/lysyi3m/site-watch/app/cfg"
	"github.com/lysyi3m/site-watch/app/database"
)

// Generator renders a user's notifications as an RSS 2.0 document.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(userID string, notifications []database.Notification) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	baseURL := cfg.Get().BaseUrl
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", cfg.Get().Port)
	}

	g.writeElement(&buf, "title", "Site Watch notifications", 4)
	g.writeElement(&buf, "link", baseURL, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Tracked website updates for %s", userID), 4)

	selfLink := baseURL + "/api/notifications/feed"
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(notifications) > 0 {
		lastBuildDate = notifications[0].CreatedAt.In(time.Local)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("SiteWatch/%s", cfg.Get().Version), 4)

	for _, n := range notifications {
		g.writeItem(&buf, n)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, n database.Notification) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(n.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", n.Title, 6)
	g.writeElement(buf, "link", n.Metadata["url"], 6)
	g.writeElement(buf, "description", n.Message, 6)
	g.writeElement(buf, "pubDate", n.CreatedAt.In(time.Local).Format(time.RFC1123Z), 6)
	g.writeElement(buf, "category", n.Type, 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
