package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher"
)

// MockFetcher is a mock implementation of catalog.DocumentFetcher.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	args := m.Called(ctx, rawURL)
	doc, _ := args.Get(0).(*goquery.Document)
	return doc, args.Error(1)
}

const categoryURL = "https://zootovary.ru/catalog/dogs/"

var category = catalog.Category{ID: 5, Name: "Корм", Path: "Собаки|Корм", URL: categoryURL}

func listingDoc(t *testing.T, pagination string, hrefs ...string) *goquery.Document {
	t.Helper()
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<div class="catalog-item"><a class="name" href="%s">item</a></div>`, h)
	}
	b.WriteString(pagination)
	b.WriteString("</body></html>")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	require.NoError(t, err)
	return doc
}

func pageURL(t *testing.T, page int) string {
	t.Helper()
	u, err := PageURL(categoryURL, page)
	require.NoError(t, err)
	return u
}

func newWalker(t *testing.T, f catalog.DocumentFetcher) *PageWalker {
	t.Helper()
	w, err := New(f, "https://zootovary.ru", zap.NewNop(), nil)
	require.NoError(t, err)
	return w
}

func collect(listings *[]Listing) Visitor {
	return func(_ context.Context, l Listing) error {
		*listings = append(*listings, l)
		return nil
	}
}

func TestWalk_WellFormedPagination(t *testing.T) {
	t.Parallel()

	nav := `<div class="navigation"><a href="?PAGEN_1=2">2</a><a href="?PAGEN_1=3">3</a></div>`
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, pageURL(t, 1)).Return(listingDoc(t, nav, "/p/1/", "/p/2/"), nil).Once()
	f.On("Fetch", mock.Anything, pageURL(t, 2)).Return(listingDoc(t, nav, "/p/3/"), nil).Once()
	f.On("Fetch", mock.Anything, pageURL(t, 3)).Return(listingDoc(t, nav, "https://zootovary.ru/p/4/"), nil).Once()

	var listings []Listing
	require.NoError(t, newWalker(t, f).Walk(context.Background(), category, collect(&listings)))

	require.Len(t, listings, 3)
	for i, l := range listings {
		require.Equal(t, i+1, l.Page)
		require.Equal(t, 3, l.LastPage)
	}
	require.Equal(t, []string{"https://zootovary.ru/p/1/", "https://zootovary.ru/p/2/"}, listings[0].Links)
	require.Equal(t, []string{"https://zootovary.ru/p/4/"}, listings[2].Links)
	f.AssertExpectations(t)
}

func TestWalk_DegradesToSinglePage(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"absent":       "",
		"no href":      `<div class="navigation"><a>3</a></div>`,
		"non-numeric":  `<div class="navigation"><a href="?PAGEN_1=last">last</a></div>`,
		"zero":         `<div class="navigation"><a href="?PAGEN_1=0">0</a></div>`,
		"empty anchor": `<div class="navigation"></div>`,
	}
	for name, nav := range cases {
		nav := nav
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := new(MockFetcher)
			f.On("Fetch", mock.Anything, pageURL(t, 1)).Return(listingDoc(t, nav, "/p/1/"), nil).Once()

			var listings []Listing
			require.NoError(t, newWalker(t, f).Walk(context.Background(), category, collect(&listings)))
			require.Len(t, listings, 1)
			f.AssertNumberOfCalls(t, "Fetch", 1)
		})
	}
}

func TestWalk_FirstPageFailureYieldsNothing(t *testing.T) {
	t.Parallel()

	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, pageURL(t, 1)).Return(nil, fmt.Errorf("%w: boom", fetcher.ErrAttemptsExhausted))

	var listings []Listing
	require.NoError(t, newWalker(t, f).Walk(context.Background(), category, collect(&listings)))
	require.Empty(t, listings)
}

func TestWalk_LaterPageFailureAbortsCategory(t *testing.T) {
	t.Parallel()

	nav := `<div class="navigation"><a href="?PAGEN_1=4">4</a></div>`
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, pageURL(t, 1)).Return(listingDoc(t, nav, "/p/1/"), nil).Once()
	f.On("Fetch", mock.Anything, pageURL(t, 2)).Return(nil, fetcher.ErrAttemptsExhausted).Once()

	var listings []Listing
	require.NoError(t, newWalker(t, f).Walk(context.Background(), category, collect(&listings)))
	require.Len(t, listings, 1)
	f.AssertNotCalled(t, "Fetch", mock.Anything, pageURL(t, 3))
}

func TestWalk_PropagatesVisitorAndContextErrors(t *testing.T) {
	t.Parallel()

	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, pageURL(t, 1)).Return(listingDoc(t, "", "/p/1/"), nil)
	boom := errors.New("store failed")
	err := newWalker(t, f).Walk(context.Background(), category, func(context.Context, Listing) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	canceled := new(MockFetcher)
	canceled.On("Fetch", mock.Anything, pageURL(t, 1)).Return(nil, context.Canceled)
	err = newWalker(t, canceled).Walk(context.Background(), category, collect(new([]Listing)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWalk_PrintsProgress(t *testing.T) {
	t.Parallel()

	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, pageURL(t, 1)).Return(listingDoc(t, ""), nil)
	var out bytes.Buffer
	w, err := New(f, "https://zootovary.ru", nil, &out)
	require.NoError(t, err)

	require.NoError(t, w.Walk(context.Background(), category, collect(new([]Listing))))
	require.Contains(t, out.String(), `page 1 of category "Собаки|Корм"`)
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	got, err := PageURL("https://zootovary.ru/catalog/dogs/?sort=price", 3)
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	require.Equal(t, "3", u.Query().Get(PageParam))
	require.Equal(t, "price", u.Query().Get("sort"))
}

func TestProductLinksSkipsItemsWithoutLink(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div class="catalog-item"><a class="name" href="/a/">a</a></div>
		<div class="catalog-item"><span>no link</span></div>
		<div class="catalog-item"><a class="name" href="/b/">b</a></div>`))
	require.NoError(t, err)
	base, _ := url.Parse("https://zootovary.ru")
	require.Equal(t, []string{"https://zootovary.ru/a/", "https://zootovary.ru/b/"}, ProductLinks(doc, base))
}
