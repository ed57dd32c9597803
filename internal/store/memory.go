package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"receipthub/internal/constants"
	"receipthub/internal/model"
	"receipthub/pkg/errors"
)

// In-memory implementations backing unit tests and local development.
// They honor the same contracts as the MongoDB stores: (nil, nil) on
// missing documents, ErrConflict on duplicate inserts and stale version
// tokens.

type MemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]model.Receipt
}

func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{receipts: make(map[string]model.Receipt)}
}

func (s *MemoryReceiptStore) GetByEventID(_ context.Context, eventID string) (*model.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.receipts {
		if r.EventID == eventID {
			copied := r
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryReceiptStore) Insert(_ context.Context, receipt *model.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[receipt.ID]; ok {
		return errors.ErrConflict.WithDetail("message", "receipt already exists")
	}
	s.receipts[receipt.ID] = *receipt
	return nil
}

func (s *MemoryReceiptStore) Update(_ context.Context, receipt *model.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[receipt.ID]; !ok {
		return errors.ErrNotFound.WithDetail("message", "receipt not found")
	}
	s.receipts[receipt.ID] = *receipt
	return nil
}

func (s *MemoryReceiptStore) FindByStatus(_ context.Context, statuses []model.ReceiptStatus, notBefore int64, page PageRequest) (*ReceiptPage, error) {
	if page.Limit <= 0 {
		page.Limit = constants.RecoveryPageSize
	}

	wanted := make(map[model.ReceiptStatus]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}

	s.mu.RLock()
	var matched []model.Receipt
	for _, r := range s.receipts {
		if _, ok := wanted[r.Status]; !ok {
			continue
		}
		if notBefore > 0 && r.InsertedAt < notBefore {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	var items []model.Receipt
	for _, r := range matched {
		if page.ContinuationToken != "" && r.ID <= page.ContinuationToken {
			continue
		}
		items = append(items, r)
		if len(items) == page.Limit {
			break
		}
	}

	result := &ReceiptPage{Items: items}
	if len(items) == page.Limit {
		result.ContinuationToken = items[len(items)-1].ID
	}
	return result, nil
}

type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string]model.Cart
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]model.Cart)}
}

func (s *MemoryCartStore) Get(_ context.Context, id string) (*model.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cart, ok := s.carts[id]; ok {
		copied := cart
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryCartStore) Insert(_ context.Context, cart *model.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[cart.ID]; ok {
		return errors.ErrConflict.WithDetail("message", "cart already exists")
	}
	s.carts[cart.ID] = *cart
	return nil
}

func (s *MemoryCartStore) ReplaceIfVersion(_ context.Context, cart *model.Cart, expectedVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.carts[cart.ID]
	if !ok || current.Version != expectedVersion {
		return errors.ErrConflict.WithDetail("message",
			fmt.Sprintf("cart %s version %s no longer current", cart.ID, expectedVersion))
	}
	s.carts[cart.ID] = *cart
	return nil
}

func (s *MemoryCartStore) Update(_ context.Context, cart *model.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[cart.ID]; !ok {
		return errors.ErrNotFound.WithDetail("message", "cart not found")
	}
	s.carts[cart.ID] = *cart
	return nil
}

type MemoryReceiptErrorStore struct {
	mu     sync.RWMutex
	errors map[string]model.ReceiptError
}

func NewMemoryReceiptErrorStore() *MemoryReceiptErrorStore {
	return &MemoryReceiptErrorStore{errors: make(map[string]model.ReceiptError)}
}

func (s *MemoryReceiptErrorStore) GetByID(_ context.Context, id string) (*model.ReceiptError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if re, ok := s.errors[id]; ok {
		copied := re
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryReceiptErrorStore) Insert(_ context.Context, re *model.ReceiptError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.errors[re.ID]; ok {
		return errors.ErrConflict.WithDetail("message", "receipt error already exists")
	}
	s.errors[re.ID] = *re
	return nil
}

func (s *MemoryReceiptErrorStore) Update(_ context.Context, re *model.ReceiptError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.errors[re.ID]; !ok {
		return errors.ErrNotFound.WithDetail("message", "receipt error not found")
	}
	s.errors[re.ID] = *re
	return nil
}

func (s *MemoryReceiptErrorStore) FindByStatus(_ context.Context, status model.ReceiptErrorStatus, page PageRequest) (*ReceiptErrorPage, error) {
	if page.Limit <= 0 {
		page.Limit = constants.RecoveryPageSize
	}

	s.mu.RLock()
	var matched []model.ReceiptError
	for _, re := range s.errors {
		if re.Status == status {
			matched = append(matched, re)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	var items []model.ReceiptError
	for _, re := range matched {
		if page.ContinuationToken != "" && re.ID <= page.ContinuationToken {
			continue
		}
		items = append(items, re)
		if len(items) == page.Limit {
			break
		}
	}

	result := &ReceiptErrorPage{Items: items}
	if len(items) == page.Limit {
		result.ContinuationToken = items[len(items)-1].ID
	}
	return result, nil
}

type MemoryBizEventStore struct {
	mu     sync.RWMutex
	events map[string]model.BizEvent
}

func NewMemoryBizEventStore() *MemoryBizEventStore {
	return &MemoryBizEventStore{events: make(map[string]model.BizEvent)}
}

func (s *MemoryBizEventStore) GetByID(_ context.Context, id string) (*model.BizEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.events[id]; ok {
		copied := e
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryBizEventStore) GetByTransactionID(_ context.Context, transactionID string) ([]model.BizEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []model.BizEvent
	for _, e := range s.events {
		if e.TransactionID() == transactionID {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (s *MemoryBizEventStore) Upsert(_ context.Context, event *model.BizEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = *event
	return nil
}

type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Upload(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.blobs[name] = copied
	return "memory://" + name, nil
}

func (s *MemoryBlobStore) Download(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, errors.ErrNotFound.WithDetail("message", "blob not found: "+name)
	}
	return data, nil
}
