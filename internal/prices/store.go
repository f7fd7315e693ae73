package prices

import (
	"context"
	"errors"
)

var (
	ErrInvalidPage = errors.New("offset and limit must be non-negative")
	ErrUnavailable = errors.New("store unavailable")
)

// PricedItem is one observed catalog entry. Duplicate (Name, Price) pairs
// are allowed by the store; ingestion avoids them on a best-effort basis.
type PricedItem struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Store persists priced items. Every method is atomic on its own; no
// transaction spans more than one call.
type Store interface {
	InitSchema(ctx context.Context) error
	ListAll(ctx context.Context) ([]PricedItem, error)
	ListPage(ctx context.Context, offset, limit int) ([]PricedItem, error)
	Get(ctx context.Context, id int64) (PricedItem, bool, error)
	Insert(ctx context.Context, name string, price int64) (PricedItem, error)
	Exists(ctx context.Context, name string, price int64) (bool, error)
	Update(ctx context.Context, id int64, name string, price int64) (PricedItem, bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

func checkPage(offset, limit int) error {
	if offset < 0 || limit < 0 {
		return ErrInvalidPage
	}
	return nil
}
