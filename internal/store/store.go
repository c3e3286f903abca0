// Package store persists product records append-only, skipping records whose
// barcode has already been stored.
package store

import (
	"context"

	"github.com/JakeFAU/catalog-crawler/internal/record"
)

// Outcome reports what Append did with a record.
type Outcome int

// Append outcomes.
const (
	Written Outcome = iota
	SkippedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case SkippedDuplicate:
		return "skipped_duplicate"
	default:
		return "unknown"
	}
}

// Store is an append-only deduplicating record sink. Identity is the
// barcode; a nil barcode never matches another record.
type Store interface {
	Append(ctx context.Context, p record.Product) (Outcome, error)
	Close() error
}
