package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DocumentFetcher returns the parsed document at a URL.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// PathSeparator joins a parent and child name into a category path.
const PathSeparator = "|"

// Discover builds the category tree from the catalog menu on the home page.
// Top-level entries come from `li.lev1`, their children from the `li.col1`
// link list. Children are numbered right after their parent's id and the next
// parent continues after the last child.
func Discover(ctx context.Context, fetcher DocumentFetcher, baseURL string) ([]Category, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := fetcher.Fetch(ctx, base.String())
	if err != nil {
		return nil, fmt.Errorf("fetch home page: %w", err)
	}
	categories := ParseMenu(doc, base)
	if len(categories) == 0 {
		return nil, errors.New("no categories found in catalog menu")
	}
	return categories, nil
}

// ParseMenu extracts categories from an already fetched home page.
func ParseMenu(doc *goquery.Document, base *url.URL) []Category {
	var out []Category
	parentID := 0
	doc.Find("li.lev1").Each(func(_ int, item *goquery.Selection) {
		top := item.Find("a").First()
		href, ok := top.Attr("href")
		if !ok {
			return
		}
		name := strings.TrimSpace(top.AttrOr("title", top.Text()))

		childID := parentID
		item.Find("li.col1").First().Find("a").Each(func(_ int, sub *goquery.Selection) {
			subHref, ok := sub.Attr("href")
			if !ok {
				return
			}
			childID++
			pid := parentID
			subName := strings.TrimSpace(sub.Text())
			out = append(out, Category{
				ID:       childID,
				ParentID: &pid,
				Name:     subName,
				Path:     name + PathSeparator + subName,
				URL:      resolve(base, subHref),
			})
		})

		out = append(out, Category{
			ID:   parentID,
			Name: name,
			Path: name,
			URL:  resolve(base, href),
		})
		parentID = childID + 1
	})
	return out
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return base.String() + href
	}
	return base.ResolveReference(ref).String()
}
