package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
)

func newTestCMS(t *testing.T, handler http.HandlerFunc) *CMSClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &CMSClient{
		BaseURL:     srv.URL,
		SpaceID:     "space1",
		Environment: "master",
		AccessToken: "cms-token",
		HTTP:        resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
	}
}

func TestCMSProducts(t *testing.T) {
	t.Parallel()

	cms := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/spaces/space1/environments/master/entries", r.URL.Path)
		require.Equal(t, "product", r.URL.Query().Get("content_type"))
		require.Equal(t, "cms-token", r.URL.Query().Get("access_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"sys": map[string]any{"id": "entry-1"},
					"fields": map[string]any{
						"productId":   1,
						"name":        "Sourdough Loaf",
						"description": "Naturally leavened.",
						"price":       12.50,
						"available":   true,
					},
				},
				{
					"sys": map[string]any{"id": "entry-2"},
					"fields": map[string]any{
						"productId": 2,
						"name":      "Croissant",
						"price":     4.50,
					},
				},
			},
		})
	})

	products, err := cms.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.EqualValues(t, 1250, products[0].Price)
	require.True(t, products[1].Available, "available defaults to true when unset")
}

func TestCMSProductsRejectsMalformedEntry(t *testing.T) {
	t.Parallel()

	cms := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"sys":    map[string]any{"id": "entry-broken"},
					"fields": map[string]any{"name": "No price or id"},
				},
			},
		})
	})

	_, err := cms.Products(context.Background())
	var shape *ContentShapeError
	require.ErrorAs(t, err, &shape)
	require.Equal(t, "entry-broken", shape.EntryID)
}

func TestCMSPageBySlug(t *testing.T) {
	t.Parallel()

	cms := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "page", r.URL.Query().Get("content_type"))
		require.Equal(t, "faq", r.URL.Query().Get("fields.slug"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"sys":    map[string]any{"id": "page-1"},
					"fields": map[string]any{"slug": "faq", "title": "FAQ", "body": "All the answers."},
				},
			},
		})
	})

	page, err := cms.PageBySlug(context.Background(), "faq")
	require.NoError(t, err)
	require.Equal(t, "FAQ", page.Title)
}

func TestCMSPageBySlugNotFound(t *testing.T) {
	t.Parallel()

	cms := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	})
	_, err := cms.PageBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
