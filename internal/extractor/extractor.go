// Package extractor turns catalog pages into (name, price) observations.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const defaultMaxPages = 10

// Observation is one (name, price) pair seen on a catalog page.
type Observation struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type Extractor interface {
	Extract(ctx context.Context, baseURL, path string) ([]Observation, error)
}

// Selectors locate catalog entries. Name and Price are evaluated inside
// each Item match; Next points at the link to the following page.
type Selectors struct {
	Item  string
	Name  string
	Price string
	Next  string
}

// DefaultSelectors match schema.org Product microdata, which most
// storefront templates emit.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:  `[itemtype$="schema.org/Product"]`,
		Name:  `[itemprop="name"]`,
		Price: `[itemprop="price"]`,
		Next:  `a[rel="next"]`,
	}
}

type HTMLExtractor struct {
	Fetcher   Fetcher
	Selectors Selectors
	MaxPages  int
	Log       *zap.Logger
}

func (e *HTMLExtractor) Extract(ctx context.Context, baseURL, path string) ([]Observation, error) {
	start, err := resolve(baseURL, path)
	if err != nil {
		return nil, err
	}

	maxPages := e.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	var (
		out     []Observation
		visited = make(map[string]struct{}, maxPages)
		next    = start
	)

	for pages := 0; next != "" && pages < maxPages; pages++ {
		if _, seen := visited[next]; seen {
			break
		}
		visited[next] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := e.Fetcher.Fetch(ctx, next)
		if err != nil {
			return nil, err
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrFetch, next, err)
		}

		found := e.parse(doc)
		e.logger().Debug("catalog page parsed",
			zap.String("url", next),
			zap.Int("items", len(found)),
		)
		out = append(out, found...)

		next = e.nextURL(doc, next)
	}

	if len(out) == 0 {
		e.logger().Warn("no items found, selectors may be stale", zap.String("url", start))
	}
	return out, nil
}

func (e *HTMLExtractor) parse(doc *goquery.Document) []Observation {
	var out []Observation

	doc.Find(e.Selectors.Item).Each(func(_ int, item *goquery.Selection) {
		name := collapseSpace(item.Find(e.Selectors.Name).First().Text())
		if name == "" {
			return
		}

		priceSel := item.Find(e.Selectors.Price).First()
		raw, ok := priceSel.Attr("content")
		if !ok || strings.TrimSpace(raw) == "" {
			raw = priceSel.Text()
		}
		price, ok := ParsePrice(raw)
		if !ok {
			return
		}

		out = append(out, Observation{Name: name, Price: price})
	})

	return out
}

func (e *HTMLExtractor) nextURL(doc *goquery.Document, current string) string {
	if e.Selectors.Next == "" {
		return ""
	}
	href, ok := doc.Find(e.Selectors.Next).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	u, err := resolve(current, strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return u
}

func (e *HTMLExtractor) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	if b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", base)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
