// Package catalog loads, selects and discovers the catalog categories a crawl
// walks through.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Header is the column layout of the categories file.
var Header = []string{"name", "id", "parent_id", "category", "url"}

// Category is a node of the catalog tree. Path is the ancestry label used as
// the category of every product found under it.
type Category struct {
	ID       int
	ParentID *int
	Name     string
	Path     string
	URL      string
}

// Index holds categories in source order with lookup by id.
type Index struct {
	ordered []Category
	byID    map[int]int
}

// NewIndex builds an index; duplicate ids are rejected.
func NewIndex(categories []Category) (*Index, error) {
	idx := &Index{
		ordered: make([]Category, 0, len(categories)),
		byID:    make(map[int]int, len(categories)),
	}
	for _, c := range categories {
		if _, dup := idx.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %d", c.ID)
		}
		idx.byID[c.ID] = len(idx.ordered)
		idx.ordered = append(idx.ordered, c)
	}
	return idx, nil
}

// Len reports the number of categories.
func (i *Index) Len() int {
	return len(i.ordered)
}

// Get returns the category with the given id.
func (i *Index) Get(id int) (Category, bool) {
	pos, ok := i.byID[id]
	if !ok {
		return Category{}, false
	}
	return i.ordered[pos], true
}

// Select returns the categories for ids in the given order, or every category
// in source order when ids is empty.
func (i *Index) Select(ids []int) ([]Category, error) {
	if len(ids) == 0 {
		out := make([]Category, len(i.ordered))
		copy(out, i.ordered)
		return out, nil
	}
	out := make([]Category, 0, len(ids))
	for _, id := range ids {
		c, ok := i.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown category id %d", id)
		}
		out = append(out, c)
	}
	return out, nil
}

// LoadCategories reads a `;`-separated categories file.
func LoadCategories(path string) (*Index, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open categories %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	categories, err := ReadCategories(f)
	if err != nil {
		return nil, fmt.Errorf("read categories %s: %w", path, err)
	}
	return NewIndex(categories)
}

// ReadCategories parses categories from r. Columns are located by header name
// so files with extra or reordered columns still load.
func ReadCategories(r io.Reader) ([]Category, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty categories file")
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range Header {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []Category
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		cell := func(name string) string {
			if i := cols[name]; i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		id, err := parseID(cell("id"))
		if err != nil {
			return nil, fmt.Errorf("line %d: id: %w", line, err)
		}
		c := Category{
			ID:   id,
			Name: cell("name"),
			Path: cell("category"),
			URL:  cell("url"),
		}
		if raw := cell("parent_id"); raw != "" {
			parent, err := parseID(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: parent_id: %w", line, err)
			}
			c.ParentID = &parent
		}
		if c.URL == "" {
			return nil, fmt.Errorf("line %d: empty url for category %d", line, id)
		}
		out = append(out, c)
	}
}

// WriteCategories writes categories sorted by id in the layout ReadCategories
// expects.
func WriteCategories(path string, categories []Category) error {
	sorted := make([]Category, len(categories))
	copy(sorted, categories)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].ID < sorted[b].ID })

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create categories dir: %w", err)
		}
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create categories %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return err
	}
	for _, c := range sorted {
		parent := ""
		if c.ParentID != nil {
			parent = strconv.Itoa(*c.ParentID)
		}
		if err := w.Write([]string{c.Name, strconv.Itoa(c.ID), parent, c.Path, c.URL}); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write categories %s: %w", path, err)
	}
	return f.Close()
}

// parseID accepts integers and integral floats ("3.0"), which is how
// dataframe exports render nullable integer columns.
func parseID(raw string) (int, error) {
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return int(f), nil
}
