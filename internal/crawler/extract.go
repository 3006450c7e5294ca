package crawler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxDescriptionRunes bounds the paragraph fallback used as a description.
const MaxDescriptionRunes = 300

// ParsePage extracts the title, description, h1-h3 headings, and absolute
// outbound links from an HTML document.
func ParsePage(html string, baseURL string) (PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageContent{}, fmt.Errorf("parse html: %w", err)
	}

	content := PageContent{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	if meta, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		content.Description = strings.TrimSpace(meta)
	}
	if content.Description == "" {
		if p := doc.Find("p").First(); p.Length() > 0 {
			content.Description = truncateRunes(strings.TrimSpace(p.Text()), MaxDescriptionRunes)
		}
	}

	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			content.Headings = append(content.Headings, text)
		}
	})

	links := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		links[ResolveReference(baseURL, href)] = struct{}{}
	})
	content.Links = make([]string, 0, len(links))
	for link := range links {
		content.Links = append(content.Links, link)
	}
	sort.Strings(content.Links)

	return content, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
