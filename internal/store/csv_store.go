package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/record"
)

// FileName is the name of the output file inside the output directory.
const FileName = "result.csv"

// CSVStore appends records to a `;`-separated file. Stored barcodes are kept
// in memory so membership checks do not rescan the file.
type CSVStore struct {
	path   string
	file   *os.File
	writer *csv.Writer
	seen   map[int64]struct{}
	logger *zap.Logger
}

// OpenCSV opens or creates <dir>/result.csv. A new or empty file gets the
// header row; an existing one is scanned to index its barcodes.
func OpenCSV(dir string, logger *zap.Logger) (*CSVStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)

	seen, err := indexBarcodes(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	s := &CSVStore{
		path:   path,
		file:   file,
		writer: newWriter(file),
		seen:   seen,
		logger: logger,
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat output %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := s.writeRow(record.Columns); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	logger.Debug("output store opened", zap.String("path", path), zap.Int("known_barcodes", len(seen)))
	return s, nil
}

// Path returns the output file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Append writes p unless its barcode is already stored.
func (s *CSVStore) Append(ctx context.Context, p record.Product) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Written, err
	}
	if p.Barcode != nil {
		if _, dup := s.seen[*p.Barcode]; dup {
			return SkippedDuplicate, nil
		}
	}
	if err := s.writeRow(p.Row()); err != nil {
		return Written, fmt.Errorf("append record %s: %w", p, err)
	}
	if p.Barcode != nil {
		s.seen[*p.Barcode] = struct{}{}
	}
	return Written, nil
}

// Close flushes and closes the file.
func (s *CSVStore) Close() error {
	s.writer.Flush()
	werr := s.writer.Error()
	cerr := s.file.Close()
	return errors.Join(werr, cerr)
}

func (s *CSVStore) writeRow(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	return cw
}

// indexBarcodes collects the barcodes of every stored row. A missing file
// yields an empty index.
func indexBarcodes(path string) (map[int64]struct{}, error) {
	seen := make(map[int64]struct{})
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return seen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	col := record.BarcodeColumn
	for first := true; ; first = false {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return seen, nil
		}
		if err != nil {
			return nil, fmt.Errorf("scan output %s: %w", path, err)
		}
		if first {
			col = headerColumn(row, col)
			continue
		}
		if col >= len(row) {
			continue
		}
		if v, ok := record.ParseBarcode(row[col]); ok {
			seen[v] = struct{}{}
		}
	}
}

func headerColumn(header []string, fallback int) int {
	want := record.Columns[record.BarcodeColumn]
	for i, name := range header {
		if strings.TrimSpace(name) == want {
			return i
		}
	}
	return fallback
}
