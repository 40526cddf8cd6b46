package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	catalogTimeout   = 3 * time.Second
	maxCatalogBody   = 1 << 20
	breakerTripAfter = 5
	breakerOpenFor   = 10 * time.Second
)

var (
	ErrCatalogNotFound    = errors.New("catalog product not found")
	ErrCatalogBadStatus   = errors.New("catalog bad status")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// CatalogClient talks to the catalog service over HTTP. Consecutive upstream
// failures open a circuit breaker, after which calls fail fast with
// ErrCatalogUnavailable until the breaker lets a probe through.
type CatalogClient struct {
	BaseURL string
	Client  *http.Client

	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewCatalogClient(baseURL string, log *zap.Logger, metrics *Metrics) *CatalogClient {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	if log == nil {
		log = zap.NewNop()
	}

	st := gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     breakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCatalogNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.breakerChanged(to.String())
		},
	}

	return &CatalogClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: catalogTimeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](st),
	}
}

func (c *CatalogClient) GetStock(ctx context.Context, productID int64) (Stock, error) {
	body, err := c.fetch(ctx, fmt.Sprintf("/stock/%d", productID))
	if err != nil {
		return Stock{}, err
	}

	var st Stock
	if err := json.Unmarshal(body, &st); err != nil {
		return Stock{}, fmt.Errorf("decode stock %d: %w", productID, err)
	}
	switch st.ID {
	case 0:
		st.ID = productID
	case productID:
	default:
		return Stock{}, fmt.Errorf("%w: stock for product %d, asked for %d", ErrCatalogBadStatus, st.ID, productID)
	}
	return st, nil
}

func (c *CatalogClient) GetProduct(ctx context.Context, productID int64) (Product, error) {
	body, err := c.fetch(ctx, fmt.Sprintf("/products/%d", productID))
	if err != nil {
		return Product{}, err
	}

	var p Product
	if err := json.Unmarshal(body, &p); err != nil {
		return Product{}, fmt.Errorf("decode product %d: %w", productID, err)
	}
	return p, nil
}

func (c *CatalogClient) fetch(ctx context.Context, path string) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, path)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	return body, err
}

func (c *CatalogClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrCatalogNotFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status=%d", ErrCatalogBadStatus, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxCatalogBody))
}
