package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"RocketShoes/pkg/kit"
)

const streamKeepAlive = 15 * time.Second

type Server struct {
	Carts *Registry
	Log   *zap.Logger
}

type amountReq struct {
	Amount *int `json:"amount"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Group(func(pr chi.Router) {
		pr.Use(RequireShopper)
		pr.Get("/cart", s.get)
		pr.Get("/cart/stream", s.stream)
		pr.Post("/cart/products/{id}", s.add)
		pr.Put("/cart/products/{id}", s.update)
		pr.Delete("/cart/products/{id}", s.remove)
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Carts.Ping(ctx); err != nil {
		s.logger().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusOK, store.Cart())
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	store, id, ok := s.target(w, r)
	if !ok {
		return
	}
	s.reply(w, r, store, OpAdd, store.AddProduct(r.Context(), id))
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	store, id, ok := s.target(w, r)
	if !ok {
		return
	}
	s.reply(w, r, store, OpRemove, store.RemoveProduct(r.Context(), id))
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	store, id, ok := s.target(w, r)
	if !ok {
		return
	}

	var req amountReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if req.Amount == nil {
		kit.WriteError(w, r, http.StatusBadRequest, "amount required", nil)
		return
	}

	s.reply(w, r, store, OpUpdate, store.UpdateProductAmount(r.Context(), id, *req.Amount))
}

// stream sends the current cart, then every accepted snapshot, as server-sent events.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		kit.WriteError(w, r, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	// Only the newest snapshot matters, so a slow reader skips stale ones.
	updates := make(chan []Item, 1)
	unsubscribe := store.Subscribe(func(items []Item) {
		select {
		case updates <- items:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- items:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, store.Cart()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case items := <-updates:
			if err := writeEvent(w, items); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, items []Item) error {
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: cart\ndata: %s\n\n", b)
	return err
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, store *Store, op Op, err error) {
	if err != nil {
		kit.WriteError(w, r, statusFor(err), Message(op, err), map[string]any{"cart": store.Cart()})
		return
	}
	kit.WriteJSON(w, http.StatusOK, store.Cart())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPersist):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	sid, ok := ShopperFromContext(r.Context())
	if !ok {
		kit.WriteError(w, r, http.StatusUnauthorized, "no shopper", nil)
		return nil, false
	}

	store, err := s.Carts.Get(r.Context(), sid)
	if err != nil {
		s.logger().Error("load cart failed", zap.Error(err), zap.String("shopper", sid))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "cart unavailable", nil)
		return nil, false
	}
	return store, true
}

func (s *Server) target(w http.ResponseWriter, r *http.Request) (*Store, int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad product id", map[string]any{"id": raw})
		return nil, 0, false
	}

	store, ok := s.store(w, r)
	if !ok {
		return nil, 0, false
	}
	return store, id, true
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
