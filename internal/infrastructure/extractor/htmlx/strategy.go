package htmlx

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/atom"
)

// contentSelectors are tried in order before falling back to text density.
var contentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"#main",
	"#content",
	".main",
	".content",
	".post",
	".entry",
	".article-content",
	".post-content",
	".entry-content",
	".page-content",
}

type strategy struct {
	name string
	find func(doc *goquery.Document) *goquery.Selection
}

func strategies() []strategy {
	out := make([]strategy, 0, len(contentSelectors)+2)
	for _, selector := range contentSelectors {
		out = append(out, strategy{name: selector, find: func(doc *goquery.Document) *goquery.Selection {
			return largest(doc.Find(selector))
		}})
	}
	out = append(out,
		strategy{name: "density", find: densest},
		strategy{name: "body", find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("body").First()
		}},
	)
	return out
}

// selectRegion returns the first region whose visible text reaches minText.
func selectRegion(doc *goquery.Document, minText int) (*goquery.Selection, string, bool) {
	for _, s := range strategies() {
		region := s.find(doc)
		if region == nil || region.Length() == 0 {
			continue
		}
		if textLength(region) >= minText {
			return region, s.name, true
		}
	}
	return nil, "", false
}

func largest(matches *goquery.Selection) *goquery.Selection {
	var best *goquery.Selection
	bestLen := -1
	matches.Each(func(_ int, s *goquery.Selection) {
		if n := textLength(s); n > bestLen {
			best, bestLen = s, n
		}
	})
	return best
}

// densest picks the container with the most text held directly in
// paragraph-like children.
func densest(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestScore := 0
	doc.Find("div, section, td").Each(func(_ int, container *goquery.Selection) {
		score := 0
		container.Children().Each(func(_ int, child *goquery.Selection) {
			if node := child.Get(0); node != nil && isTextBlock(node.DataAtom) {
				score += textLength(child)
			}
		})
		if score > bestScore {
			best, bestScore = container, score
		}
	})
	return best
}

func isTextBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Pre, atom.Blockquote, atom.Ul, atom.Ol, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func textLength(s *goquery.Selection) int {
	return utf8.RuneCountInString(strings.Join(strings.Fields(s.Text()), " "))
}
