package htmlx

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const boilerplateSelector = "script, style, noscript, template, iframe, object, embed, svg, canvas, " +
	"form, button, input, select, textarea, nav, aside, footer, img, picture, video, audio, " +
	"[role=navigation], [role=contentinfo], [role=complementary], [aria-hidden=true]"

var noiseTokens = map[string]struct{}{
	"nav": {}, "navbar": {}, "navigation": {}, "menu": {}, "sidebar": {}, "footer": {},
	"breadcrumb": {}, "breadcrumbs": {}, "ad": {}, "ads": {}, "advert": {}, "advertisement": {},
	"social": {}, "share": {}, "sharing": {}, "comments": {}, "comment-list": {},
	"cookie": {}, "cookie-banner": {}, "cookies": {}, "popup": {}, "modal": {},
	"newsletter": {}, "related": {}, "skip-link": {}, "toc": {}, "table-of-contents": {},
}

// stripBoilerplate removes chrome that never carries article text. Page
// headers survive only inside article or main, where they hold the title.
func stripBoilerplate(doc *goquery.Document) {
	doc.Find(boilerplateSelector).Remove()

	doc.Find("header, [role=banner]").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("article, main").Length() == 0 {
			s.Remove()
		}
	})

	doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		if s.Is("html, body, main, article") || s.Find("article, main").Length() > 0 {
			return
		}
		if isNoise(s) {
			s.Remove()
		}
	})
}

func isNoise(s *goquery.Selection) bool {
	class, _ := s.Attr("class")
	for _, token := range strings.Fields(strings.ToLower(class)) {
		if _, ok := noiseTokens[token]; ok {
			return true
		}
	}
	id, _ := s.Attr("id")
	_, ok := noiseTokens[strings.ToLower(strings.TrimSpace(id))]
	return ok
}
