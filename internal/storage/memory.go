package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"chain-price-alerts/internal/chain"
)

// MemoryPriceStore keeps samples in per-chain slices ordered by timestamp.
type MemoryPriceStore struct {
	mu      sync.RWMutex
	samples map[chain.Chain][]PriceSample
}

// NewMemoryPriceStore creates an empty in-memory price store.
func NewMemoryPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{samples: make(map[chain.Chain][]PriceSample)}
}

// Append inserts the sample after any existing samples with the same timestamp.
func (s *MemoryPriceStore) Append(_ context.Context, sample PriceSample) error {
	if err := validateSample(sample); err != nil {
		return storageErr("append price sample", err)
	}
	sample.Timestamp = sample.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.samples[sample.Chain]
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp.After(sample.Timestamp)
	})
	list = append(list, PriceSample{})
	copy(list[idx+1:], list[idx:])
	list[idx] = sample
	s.samples[sample.Chain] = list
	return nil
}

// Query returns samples with Timestamp >= since, newest first.
func (s *MemoryPriceStore) Query(_ context.Context, c chain.Chain, since time.Time) ([]PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.samples[c]
	start := sort.Search(len(list), func(i int) bool {
		return !list[i].Timestamp.Before(since)
	})

	result := make([]PriceSample, 0, len(list)-start)
	for i := len(list) - 1; i >= start; i-- {
		result = append(result, list[i])
	}
	return result, nil
}

// ClosestBefore returns the newest sample not later than at.
func (s *MemoryPriceStore) ClosestBefore(_ context.Context, c chain.Chain, at time.Time) (*PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.samples[c]
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp.After(at)
	})
	if idx == 0 {
		return nil, nil
	}
	sample := list[idx-1]
	return &sample, nil
}

// MemoryAlertStore keeps alerts in creation order.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []Alert
	nextID int64
	now    func() time.Time
}

// NewMemoryAlertStore creates an empty in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{nextID: 1, now: time.Now}
}

// Create assigns an ID and creation time to alert and stores a copy.
func (s *MemoryAlertStore) Create(_ context.Context, alert *Alert) error {
	if err := validateAlert(alert); err != nil {
		return storageErr("create alert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert.ID = s.nextID
	s.nextID++
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}
	s.alerts = append(s.alerts, *alert)
	return nil
}

// ListAll returns every alert in creation order.
func (s *MemoryAlertStore) ListAll(_ context.Context) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out, nil
}

var (
	_ PriceStore = (*MemoryPriceStore)(nil)
	_ AlertStore = (*MemoryAlertStore)(nil)
)
