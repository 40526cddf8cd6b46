// Package cart keeps a shopper's cart: which products were picked and how many
// of each. Every accepted change is checked against catalog stock, written to a
// persistent slot and published to subscribers.
package cart

import (
	"context"
	"errors"
)

// SlotKey is the fixed key the serialized cart lives under.
const SlotKey = "@RocketShoes:cart"

// User-facing notification texts.
const (
	MsgOutOfStock   = "Quantidade solicitada fora de estoque"
	MsgAddFailed    = "Erro na adição do produto"
	MsgRemoveFailed = "Erro na remoção do produto"
	MsgUpdateFailed = "Erro na alteração de quantidade do produto"
)

var (
	ErrOutOfStock   = errors.New("requested amount out of stock")
	ErrItemNotFound = errors.New("product not in cart")
	ErrUpstream     = errors.New("catalog lookup failed")
	ErrPersist      = errors.New("cart persist failed")
)

type Product struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Item is a cart line. It serializes flat: the product fields plus amount.
type Item struct {
	Product
	Amount int `json:"amount"`
}

type Stock struct {
	ID     int64 `json:"id"`
	Amount int   `json:"amount"`
}

type Catalog interface {
	GetStock(ctx context.Context, productID int64) (Stock, error)
	GetProduct(ctx context.Context, productID int64) (Product, error)
}

// Slot is a persistent key-value slot, already scoped to one shopper.
type Slot interface {
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Write(ctx context.Context, key, value string) error
}

// Notifier shows messages to the shopper. Calls are fire-and-forget.
type Notifier interface {
	Error(msg string)
}

type NotifierFunc func(msg string)

func (f NotifierFunc) Error(msg string) { f(msg) }

type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpUpdate Op = "update"
)

// Message returns the text shown to the shopper when op ends with err,
// or "" for a nil err.
func Message(op Op, err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrOutOfStock) {
		return MsgOutOfStock
	}
	switch op {
	case OpAdd:
		return MsgAddFailed
	case OpRemove:
		return MsgRemoveFailed
	default:
		return MsgUpdateFailed
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrItemNotFound):
		return "not_found"
	case errors.Is(err, ErrPersist):
		return "persist_error"
	default:
		return "upstream_error"
	}
}
