package cart_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RocketShoes/internal/cart"
)

func TestCatalogClient_GetStockAndProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/stock/1":
			_, _ = w.Write([]byte(`{"id":1,"amount":3}`))
		case "/products/1":
			_, _ = w.Write([]byte(`{"id":1,"title":"Tênis","price":179.9,"image":"tenis1.jpg"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := cart.NewCatalogClient(srv.URL+"/", nil, nil)
	ctx := context.Background()

	st, err := c.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, cart.Stock{ID: 1, Amount: 3}, st)

	p, err := c.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, cart.Product{ID: 1, Title: "Tênis", Price: 179.9, Image: "tenis1.jpg"}, p)

	_, err = c.GetProduct(ctx, 2)
	assert.ErrorIs(t, err, cart.ErrCatalogNotFound)
}

func TestCatalogClient_BadStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stock/1" {
			_, _ = w.Write([]byte(`not json`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := cart.NewCatalogClient(srv.URL, nil, nil)

	_, err := c.GetStock(context.Background(), 1)
	assert.Error(t, err)

	_, err = c.GetStock(context.Background(), 2)
	assert.ErrorIs(t, err, cart.ErrCatalogBadStatus)
}

func TestCatalogClient_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics := cart.NewMetrics(reg)
	c := cart.NewCatalogClient(srv.URL, nil, metrics)

	for i := 0; i < 5; i++ {
		_, err := c.GetStock(context.Background(), 1)
		require.ErrorIs(t, err, cart.ErrCatalogBadStatus)
	}

	_, err := c.GetStock(context.Background(), 1)
	assert.ErrorIs(t, err, cart.ErrCatalogUnavailable)
	assert.Equal(t, int32(5), hits.Load())
	assert.Equal(t, 1.0, counterValue(t, reg, "catalog_breaker_state_changes_total", "open"))
}

func TestCatalogClient_NotFoundDoesNotTrip(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := cart.NewCatalogClient(srv.URL, nil, nil)
	for i := 0; i < 8; i++ {
		_, err := c.GetProduct(context.Background(), 9)
		require.ErrorIs(t, err, cart.ErrCatalogNotFound)
	}
	assert.Equal(t, int32(8), hits.Load())
}

func TestCatalogClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := cart.NewCatalogClient(url, nil, nil)
	_, err := c.GetStock(context.Background(), 1)
	assert.ErrorIs(t, err, cart.ErrCatalogUnavailable)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCatalogClient_StockForAnotherProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stock/1":
			_, _ = w.Write([]byte(`{"id":2,"amount":9}`))
		case "/stock/3":
			_, _ = w.Write([]byte(`{"amount":4}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := cart.NewCatalogClient(srv.URL, nil, nil)

	_, err := c.GetStock(context.Background(), 1)
	assert.ErrorIs(t, err, cart.ErrCatalogBadStatus)

	st, err := c.GetStock(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, cart.Stock{ID: 3, Amount: 4}, st)
}
