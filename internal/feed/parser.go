package feed

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/newswatch-hq/newswatch/internal/domain"
)

// The parser is a tolerant scan, not a schema validator: it pulls item
// blocks out of whatever markup arrives and degrades individual fields on
// malformed input instead of failing the document.

var (
	itemRe    = regexp.MustCompile(`(?s)<item(?:\s[^>]*)?>(.*?)</item>`)
	titleRe   = regexp.MustCompile(`(?s)<title[^>]*>\s*(?:<!\[CDATA\[(.*?)\]\]>|([^<]*))\s*</title>`)
	linkRe    = regexp.MustCompile(`(?s)<link[^>]*>\s*(?:<!\[CDATA\[(.*?)\]\]>|([^<]*))\s*</link>`)
	pubDateRe = regexp.MustCompile(`(?s)<pubDate[^>]*>\s*(?:<!\[CDATA\[(.*?)\]\]>|([^<]*))\s*</pubDate>`)
)

// dateLayouts are tried in order when parsing publish dates.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
}

// Parse extracts feed items from a raw feed document. It never fails:
// items without a link are dropped, missing titles and dates come back
// empty, and unparseable dates come back nil.
func Parse(body []byte) []domain.FeedItem {
	blocks := itemRe.FindAllStringSubmatch(string(body), -1)
	if len(blocks) == 0 {
		return nil
	}

	items := make([]domain.FeedItem, 0, len(blocks))
	for _, block := range blocks {
		link := extractField(linkRe, block[1])
		if link == "" {
			continue
		}
		items = append(items, domain.FeedItem{
			Title:       extractField(titleRe, block[1]),
			Link:        link,
			PublishedAt: parsePublishDate(extractField(pubDateRe, block[1])),
		})
	}
	return items
}

// extractField pulls a field value out of an item block, accepting both
// CDATA-wrapped and plain text bodies. Plain text is entity-unescaped;
// CDATA is taken verbatim.
func extractField(re *regexp.Regexp, block string) string {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(html.UnescapeString(m[2]))
}

// parsePublishDate parses a feed date, returning nil when the value is
// missing or in a format we do not recognize.
func parsePublishDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
