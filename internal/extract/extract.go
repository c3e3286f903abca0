// Package extract turns a fetched product page into product variant records.
//
// Every field is looked up independently and reported as an optional value;
// BuildRecords assembles the records from those values, so a missing element
// only ever nulls its own field.
package extract

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/catalog-crawler/internal/record"
)

// Labels preceding offer values on a product page.
const (
	LabelPrice   = "Цена:"
	LabelBarcode = "Штрихкод:"
	LabelArticle = "Артикул:"
	LabelPacking = "Фасовка:"
)

const (
	countrySelector = "div.catalog-element-offer-left"
	picturesSelect  = "div.catalog-element-pictures"
	offersSelector  = "div.catalog-element-offer.active"
	offerRow        = "tr.b-catalog-element-offer"
	promoSelector   = "span.catalog-price"
	noStockSelector = "div.catalog-item-no-stock"
)

// PageFields are the values shared by every record of a page.
type PageFields struct {
	CapturedAt time.Time
	Name       *string
	Country    *string
	Images     []string
}

// OfferFields are the values of a single packaging variant.
type OfferFields struct {
	Price      *string
	PricePromo *string
	InStock    *bool
	Barcode    *int64
	Article    *string
	Packing    *string
}

// Extractor reads product pages.
type Extractor struct {
	base *url.URL
	now  func() time.Time
}

// New returns an Extractor resolving image links against base. A nil now
// uses time.Now.
func New(base *url.URL, now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{base: base, now: now}
}

// Extract returns one record per offer found on the page, or a single record
// with null offer fields when the page lists no offers.
func (e *Extractor) Extract(doc *goquery.Document, link, category string) []record.Product {
	page := PageFields{
		CapturedAt: e.now(),
		Name:       textOf(doc.Find("title")),
		Country:    country(doc.Find(countrySelector)),
		Images:     e.images(doc.Find(picturesSelect)),
	}

	var offers []OfferFields
	doc.Find(offersSelector).First().Find(offerRow).Each(func(_ int, row *goquery.Selection) {
		offers = append(offers, ExtractOffer(row))
	})
	return BuildRecords(page, offers, link, category)
}

// ExtractOffer reads the fields of one offer row.
func ExtractOffer(row *goquery.Selection) OfferFields {
	out := OfferFields{
		Price:      afterLabel(row, LabelPrice, "s"),
		PricePromo: textOf(row.Find(promoSelector)),
		InStock:    inStock(row),
		Article:    afterLabel(row, LabelArticle, "b"),
		Packing:    afterLabel(row, LabelPacking, "b"),
	}
	if raw := afterLabel(row, LabelBarcode, "b"); raw != nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(*raw), 10, 64); err == nil {
			out.Barcode = &v
		}
	}
	return out
}

// BuildRecords combines page and offer values into records.
func BuildRecords(page PageFields, offers []OfferFields, link, category string) []record.Product {
	if len(offers) == 0 {
		offers = []OfferFields{{}}
	}
	out := make([]record.Product, 0, len(offers))
	for _, o := range offers {
		packing := ClassifyPacking(o.Packing)
		out = append(out, record.Product{
			CapturedAt:  page.CapturedAt,
			Price:       o.Price,
			PricePromo:  o.PricePromo,
			InStock:     o.InStock,
			Barcode:     o.Barcode,
			Article:     o.Article,
			Name:        page.Name,
			Category:    category,
			Country:     page.Country,
			WeightMin:   packing.Weight,
			VolumeMin:   packing.Volume,
			QuantityMin: packing.Quantity,
			Link:        link,
			Images:      page.Images,
		})
	}
	return out
}

func (e *Extractor) images(container *goquery.Selection) []string {
	if container.Length() == 0 {
		return nil
	}
	out := []string{}
	container.First().Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if e.base != nil {
			ref = e.base.ResolveReference(ref)
		}
		out = append(out, ref.String())
	})
	return out
}

func country(sel *goquery.Selection) *string {
	text := textOf(sel)
	if text == nil {
		return nil
	}
	parts := strings.Split(*text, ":")
	v := strings.TrimSpace(parts[len(parts)-1])
	return &v
}

func inStock(row *goquery.Selection) *bool {
	if row == nil || row.Length() == 0 {
		return nil
	}
	v := row.Find(noStockSelector).Length() == 0
	return &v
}

func textOf(sel *goquery.Selection) *string {
	if sel.Length() == 0 {
		return nil
	}
	v := strings.TrimSpace(sel.First().Text())
	return &v
}

// afterLabel finds the text node equal to label inside row and returns the
// text of the first following element named tag, in document order.
func afterLabel(row *goquery.Selection, label, tag string) *string {
	if row.Length() == 0 {
		return nil
	}
	found := false
	var result *string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		switch {
		case !found && n.Type == html.TextNode && strings.TrimSpace(n.Data) == label:
			found = true
		case found && n.Type == html.ElementNode && n.Data == tag:
			v := strings.TrimSpace(goquery.NewDocumentFromNode(n).Text())
			result = &v
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(row.Get(0))
	return result
}
