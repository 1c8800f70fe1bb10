// Package detect identifies anti-bot and challenge pages in fetched content.
// Blocked responses frequently arrive as HTTP 200, so detection runs on every
// body regardless of status code.
package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BlockedResult reports whether content matched an anti-bot signature.
type BlockedResult struct {
	Blocked bool
	Marker  string // vendor label plus the pattern that matched; empty if not blocked
}

// Blocked scans content for anti-bot/CAPTCHA/challenge markers. Pure
// function, no state. The body scan is a case-insensitive substring match;
// if the content parses as HTML its <title> is checked against known
// challenge titles as well.
func Blocked(content []byte) BlockedResult {
	lower := strings.ToLower(string(content))

	var title string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(lower)); err == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	for _, sig := range blockSignatures {
		for _, t := range sig.Titles {
			if title != "" && strings.Contains(title, t) {
				return BlockedResult{Blocked: true, Marker: sig.Vendor + ":" + t}
			}
		}
		for _, p := range sig.BodyPatterns {
			if strings.Contains(lower, p) {
				return BlockedResult{Blocked: true, Marker: sig.Vendor + ":" + p}
			}
		}
	}
	return BlockedResult{}
}
