package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
)

// ErrNotFound indicates the CMS has no entry for the requested identifier.
var ErrNotFound = errors.New("catalog: entry not found")

// ContentShapeError marks a CMS entry that decoded but is missing required
// fields. These are authoring mistakes, surfaced distinctly from transport
// failures so they page content editors instead of on-call.
type ContentShapeError struct {
	EntryID string
	Reason  string
}

func (e *ContentShapeError) Error() string {
	return fmt.Sprintf("catalog: malformed entry %s: %s", e.EntryID, e.Reason)
}

// Product is a sellable catalog item as authored in the CMS.
type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       pricing.Money `json:"price"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	Category    string        `json:"category,omitempty"`
	Available   bool          `json:"available"`
}

// Page is CMS-managed storefront copy (about, FAQ, shipping policy).
type Page struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CMSClient reads the headless CMS content delivery API.
type CMSClient struct {
	BaseURL     string
	SpaceID     string
	Environment string
	AccessToken string
	HTTP        resilience.HTTPClient
}

func (c *CMSClient) entriesURL(contentType string, extra url.Values) string {
	q := url.Values{}
	q.Set("content_type", contentType)
	q.Set("access_token", c.AccessToken)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return fmt.Sprintf("%s/spaces/%s/environments/%s/entries?%s", c.BaseURL, c.SpaceID, c.Environment, q.Encode())
}

type cmsEntry struct {
	Sys struct {
		ID string `json:"id"`
	} `json:"sys"`
	Fields json.RawMessage `json:"fields"`
}

func (c *CMSClient) fetchEntries(ctx context.Context, rawURL string) ([]cmsEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("cms: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("cms: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out struct {
		Items []cmsEntry `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cms: decode: %w", err)
	}
	return out.Items, nil
}

type productFields struct {
	ProductID   *int64   `json:"productId"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	ImageURL    string   `json:"imageUrl"`
	Category    string   `json:"category"`
	Available   *bool    `json:"available"`
}

func parseProduct(entry cmsEntry) (Product, error) {
	var fields productFields
	if err := json.Unmarshal(entry.Fields, &fields); err != nil {
		return Product{}, &ContentShapeError{EntryID: entry.Sys.ID, Reason: "fields do not decode: " + err.Error()}
	}
	switch {
	case fields.ProductID == nil:
		return Product{}, &ContentShapeError{EntryID: entry.Sys.ID, Reason: "missing productId"}
	case fields.Name == "":
		return Product{}, &ContentShapeError{EntryID: entry.Sys.ID, Reason: "missing name"}
	case fields.Price == nil:
		return Product{}, &ContentShapeError{EntryID: entry.Sys.ID, Reason: "missing price"}
	case *fields.Price < 0:
		return Product{}, &ContentShapeError{EntryID: entry.Sys.ID, Reason: "negative price"}
	}
	available := true
	if fields.Available != nil {
		available = *fields.Available
	}
	return Product{
		ID:          *fields.ProductID,
		Name:        fields.Name,
		Description: fields.Description,
		Price:       pricing.FromDollars(*fields.Price),
		ImageURL:    fields.ImageURL,
		Category:    fields.Category,
		Available:   available,
	}, nil
}

// Products fetches every product entry. Malformed entries abort the batch so
// a bad publish never serves a partial menu.
func (c *CMSClient) Products(ctx context.Context) ([]Product, error) {
	entries, err := c.fetchEntries(ctx, c.entriesURL("product", nil))
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(entries))
	for _, entry := range entries {
		product, err := parseProduct(entry)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// PageBySlug fetches one storefront content page.
func (c *CMSClient) PageBySlug(ctx context.Context, slug string) (Page, error) {
	extra := url.Values{}
	extra.Set("fields.slug", slug)
	extra.Set("limit", "1")
	entries, err := c.fetchEntries(ctx, c.entriesURL("page", extra))
	if err != nil {
		return Page{}, err
	}
	if len(entries) == 0 {
		return Page{}, ErrNotFound
	}
	var fields struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal(entries[0].Fields, &fields); err != nil {
		return Page{}, &ContentShapeError{EntryID: entries[0].Sys.ID, Reason: "fields do not decode: " + err.Error()}
	}
	if fields.Slug == "" || fields.Title == "" {
		return Page{}, &ContentShapeError{EntryID: entries[0].Sys.ID, Reason: "missing slug or title"}
	}
	return Page{Slug: fields.Slug, Title: fields.Title, Body: fields.Body}, nil
}
