// Package record defines the product variant record written by the crawler
// and its tabular row encoding.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the layout used for the price_datetime column.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Columns lists the output columns in their fixed order.
var Columns = []string{
	"price_datetime",
	"price",
	"price_promo",
	"sku_status",
	"sku_barcode",
	"sku_article",
	"sku_name",
	"sku_category",
	"sku_country",
	"sku_weight_min",
	"sku_volume_min",
	"sku_quantity_min",
	"sku_link",
	"sku_images",
}

// BarcodeColumn is the index of the identity column within Columns.
const BarcodeColumn = 4

// Product is one packaging/offer variant of a product page. Nil pointers are
// null values; a nil Images slice is null while an empty one is not.
type Product struct {
	CapturedAt  time.Time
	Price       *string
	PricePromo  *string
	InStock     *bool
	Barcode     *int64
	Article     *string
	Name        *string
	Category    string
	Country     *string
	WeightMin   *string
	VolumeMin   *string
	QuantityMin *int
	Link        string
	Images      []string
}

// Row encodes the product as a row matching Columns. Null values become
// empty cells.
func (p Product) Row() []string {
	return []string{
		p.CapturedAt.Format(TimeLayout),
		str(p.Price),
		str(p.PricePromo),
		status(p.InStock),
		barcode(p.Barcode),
		str(p.Article),
		str(p.Name),
		p.Category,
		str(p.Country),
		str(p.WeightMin),
		str(p.VolumeMin),
		quantity(p.QuantityMin),
		p.Link,
		images(p.Images),
	}
}

// ParseBarcode reads the identity column of a stored row. Empty or
// non-numeric cells report ok=false.
func ParseBarcode(cell string) (int64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String returns a short description used in logs.
func (p Product) String() string {
	return fmt.Sprintf("%s barcode=%s", p.Link, barcode(p.Barcode))
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func status(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "1"
	default:
		return "0"
	}
}

func barcode(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func quantity(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func images(v []string) string {
	if v == nil {
		return ""
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
