package store

import (
	"context"

	"receipthub/internal/model"
)

// Lookups return (nil, nil) when no document matches, so callers can
// branch on presence without unwrapping sentinel errors. Conditional
// writes return errors.ErrConflict when the stored version token has
// moved.

type PageRequest struct {
	// ContinuationToken resumes a scan after the document it names.
	// Empty starts from the beginning.
	ContinuationToken string
	Limit             int
}

type ReceiptPage struct {
	Items             []model.Receipt
	ContinuationToken string
}

type ReceiptErrorPage struct {
	Items             []model.ReceiptError
	ContinuationToken string
}

type ReceiptStore interface {
	GetByEventID(ctx context.Context, eventID string) (*model.Receipt, error)
	Insert(ctx context.Context, receipt *model.Receipt) error
	Update(ctx context.Context, receipt *model.Receipt) error
	// FindByStatus pages through receipts in any of the given states,
	// inserted at or after notBefore (unix millis, 0 for no bound).
	FindByStatus(ctx context.Context, statuses []model.ReceiptStatus, notBefore int64, page PageRequest) (*ReceiptPage, error)
}

type CartStore interface {
	Get(ctx context.Context, id string) (*model.Cart, error)
	// Insert fails with errors.ErrConflict when the cart already exists.
	Insert(ctx context.Context, cart *model.Cart) error
	// ReplaceIfVersion replaces the cart only while the stored version
	// token still equals expectedVersion.
	ReplaceIfVersion(ctx context.Context, cart *model.Cart, expectedVersion string) error
	Update(ctx context.Context, cart *model.Cart) error
}

type ReceiptErrorStore interface {
	GetByID(ctx context.Context, id string) (*model.ReceiptError, error)
	Insert(ctx context.Context, re *model.ReceiptError) error
	Update(ctx context.Context, re *model.ReceiptError) error
	FindByStatus(ctx context.Context, status model.ReceiptErrorStatus, page PageRequest) (*ReceiptErrorPage, error)
}

// BizEventStore is the read model over ingested events, used by helpdesk
// recovery to rebuild generation queue payloads.
type BizEventStore interface {
	GetByID(ctx context.Context, id string) (*model.BizEvent, error)
	GetByTransactionID(ctx context.Context, transactionID string) ([]model.BizEvent, error)
	Upsert(ctx context.Context, event *model.BizEvent) error
}

// BlobStore persists rendered receipt documents and returns a stable
// reference for later retrieval.
type BlobStore interface {
	Upload(ctx context.Context, name string, data []byte) (url string, err error)
	Download(ctx context.Context, name string) ([]byte, error)
}
