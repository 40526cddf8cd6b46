package catalog

import "context"

type Product struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Stock is the maximum purchasable amount of a product.
type Stock struct {
	ID     int64 `json:"id"`
	Amount int   `json:"amount"`
}

type Store interface {
	Ping(ctx context.Context) error
	ListSortedByID(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, bool, error)
	Stock(ctx context.Context, id int64) (Stock, bool, error)
	ListStock(ctx context.Context) ([]Stock, error)
}

func NewStore() Store {
	return NewMemStore()
}
