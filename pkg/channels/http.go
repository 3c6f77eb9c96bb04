package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ethpandaops/seriesgraph/pkg/transport"
)

// HTTPCatalog reads scopes from the platform catalog API.
type HTTPCatalog struct {
	client transport.Client
}

// NewHTTPCatalog creates a catalog backed by the platform API.
func NewHTTPCatalog(client transport.Client) *HTTPCatalog {
	return &HTTPCatalog{client: client}
}

// ScopePath is the catalog API path for key.
func ScopePath(key ScopeKey) string {
	id := url.PathEscape(key.OriginID)

	switch key.Origin {
	case OriginAsset:
		return fmt.Sprintf("/catalog/v1/assets/%s/scopes/%s", id, url.PathEscape(key.Scope))
	case OriginRun:
		return fmt.Sprintf("/catalog/v1/runs/%s/scopes/%s", id, url.PathEscape(key.Scope))
	default:
		return fmt.Sprintf("/catalog/v1/datasources/%s", id)
	}
}

// Scope implements Catalog.
func (c *HTTPCatalog) Scope(ctx context.Context, key ScopeKey) (*Scope, error) {
	if !key.Origin.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, key.Origin)
	}

	var scope Scope
	if err := c.client.Do(ctx, http.MethodGet, ScopePath(key), nil, &scope); err != nil {
		if transport.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrScopeNotFound, key, err)
		}

		return nil, err
	}

	scope.Key = key

	return &scope, nil
}
