package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mapleandrye/backend-bakeshop/internal/cart"
	"github.com/mapleandrye/backend-bakeshop/internal/obs"
)

// ContentReader is the slice of the CMS the service needs.
type ContentReader interface {
	Products(ctx context.Context) ([]Product, error)
	PageBySlug(ctx context.Context, slug string) (Page, error)
}

// Service reads the catalog through a Redis cache. The CMS stays the source
// of truth; a cache miss or a cache error always falls through to it.
type Service struct {
	CMS    ContentReader
	Cache  *Cache
	Logger zerolog.Logger
}

func (s *Service) countCache(result string) {
	if obs.CatalogCacheTotal != nil {
		obs.CatalogCacheTotal.WithLabelValues(result).Inc()
	}
}

// Products lists the full menu, cached.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	if s.CMS == nil {
		return nil, errors.New("catalog: cms not configured")
	}
	var cached []Product
	hit, err := s.Cache.GetJSON(ctx, keyProducts, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache read failed")
	}
	if hit {
		s.countCache("hit")
		return cached, nil
	}
	s.countCache("miss")

	products, err := s.CMS.Products(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, keyProducts, products); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	return products, nil
}

// ProductByID resolves one product from the cached menu.
func (s *Service) ProductByID(ctx context.Context, id int64) (Product, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

// PageBySlug returns one content page, cached per slug.
func (s *Service) PageBySlug(ctx context.Context, slug string) (Page, error) {
	if s.CMS == nil {
		return Page{}, errors.New("catalog: cms not configured")
	}
	key := keyPagePrefix + slug
	var cached Page
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache read failed")
	}
	if hit {
		s.countCache("hit")
		return cached, nil
	}
	s.countCache("miss")

	page, err := s.CMS.PageBySlug(ctx, slug)
	if err != nil {
		return Page{}, err
	}
	if err := s.Cache.SetJSON(ctx, key, page); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	return page, nil
}

// CartSource adapts the catalog for cart mutations: only available products
// may be added, and the cart line carries the catalog price.
type CartSource struct {
	Service *Service
}

func (cs CartSource) Product(ctx context.Context, id int64) (cart.Item, error) {
	product, err := cs.Service.ProductByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return cart.Item{}, cart.ErrProductNotFound
	}
	if err != nil {
		return cart.Item{}, err
	}
	if !product.Available {
		return cart.Item{}, cart.ErrProductNotFound
	}
	return cart.Item{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		UnitPrice:   product.Price,
		ImageURL:    product.ImageURL,
	}, nil
}
