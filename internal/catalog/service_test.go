package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/cart"
)

type fakeCMS struct {
	products     []Product
	productsErr  error
	page         Page
	pageErr      error
	productCalls atomic.Int64
}

func (f *fakeCMS) Products(ctx context.Context) ([]Product, error) {
	f.productCalls.Add(1)
	return f.products, f.productsErr
}

func (f *fakeCMS) PageBySlug(ctx context.Context, slug string) (Page, error) {
	if f.pageErr != nil {
		return Page{}, f.pageErr
	}
	return f.page, nil
}

func newTestService(t *testing.T, cms ContentReader) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Service{
		CMS:    cms,
		Cache:  NewCache(client, time.Minute),
		Logger: zerolog.Nop(),
	}
}

func TestProductsCachesMenu(t *testing.T) {
	t.Parallel()

	cms := &fakeCMS{products: []Product{
		{ID: 1, Name: "Sourdough Loaf", Price: 1250, Available: true},
		{ID: 2, Name: "Croissant", Price: 450, Available: true},
	}}
	svc := newTestService(t, cms)

	first, err := svc.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := svc.Products(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, cms.productCalls.Load(), "second read should hit the cache")
}

func TestProductsWorksWithoutCache(t *testing.T) {
	t.Parallel()

	cms := &fakeCMS{products: []Product{{ID: 1, Name: "Sourdough Loaf", Price: 1250, Available: true}}}
	svc := &Service{CMS: cms, Logger: zerolog.Nop()}

	products, err := svc.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestProductByID(t *testing.T) {
	t.Parallel()

	cms := &fakeCMS{products: []Product{{ID: 7, Name: "Baguette", Price: 600, Available: true}}}
	svc := newTestService(t, cms)

	product, err := svc.ProductByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Baguette", product.Name)

	_, err = svc.ProductByID(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPageBySlugCaches(t *testing.T) {
	t.Parallel()

	cms := &fakeCMS{page: Page{Slug: "shipping-policy", Title: "Shipping", Body: "We ship nationwide."}}
	svc := newTestService(t, cms)

	page, err := svc.PageBySlug(context.Background(), "shipping-policy")
	require.NoError(t, err)
	require.Equal(t, "Shipping", page.Title)

	cms.pageErr = errors.New("cms down")
	cached, err := svc.PageBySlug(context.Background(), "shipping-policy")
	require.NoError(t, err, "cached page should survive a cms outage")
	require.Equal(t, page, cached)
}

func TestCartSourceFiltersUnavailable(t *testing.T) {
	t.Parallel()

	cms := &fakeCMS{products: []Product{
		{ID: 1, Name: "Sourdough Loaf", Price: 1250, Available: true},
		{ID: 2, Name: "Seasonal Stollen", Price: 2200, Available: false},
	}}
	source := CartSource{Service: newTestService(t, cms)}

	item, err := source.Product(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1250, item.UnitPrice)

	_, err = source.Product(context.Background(), 2)
	require.ErrorIs(t, err, cart.ErrProductNotFound)

	_, err = source.Product(context.Background(), 42)
	require.ErrorIs(t, err, cart.ErrProductNotFound)
}
