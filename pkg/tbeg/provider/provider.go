// Package provider supplies ready-made model.DataProvider implementations
// for the common shapes host applications already have their data in:
// a fixed map of scalars/images plus one of a handful of collection
// sources. Grounded on the teacher's SliceDataProvider/ChannelDataProvider
// pair (pkg/simpleexcelv3/data_provider.go) — same split between
// known-length in-memory data and a single-shot channel source, adapted
// to the DataProvider contract defined in pkg/tbeg/model.
package provider

import (
	"sync"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// Static is a DataProvider backed by plain Go maps, suitable for
// variables, images and document metadata known entirely up front.
// Collections are registered separately via WithSlice/WithFunc since they
// need re-callable iteration.
type Static struct {
	mu          sync.RWMutex
	values      map[string]model.Value
	images      map[string][]byte
	collections map[string]func() (model.ItemIterator, error)
	itemCounts  map[string]int
	metadata    *model.DocumentMetadata
}

// NewStatic returns an empty Static provider ready for With* calls.
func NewStatic() *Static {
	return &Static{
		values:      make(map[string]model.Value),
		images:      make(map[string][]byte),
		collections: make(map[string]func() (model.ItemIterator, error)),
		itemCounts:  make(map[string]int),
	}
}

// WithValue registers a scalar variable.
func (s *Static) WithValue(name string, v interface{}) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = model.ValueOf(v)
	return s
}

// WithImage registers raw image bytes under name.
func (s *Static) WithImage(name string, data []byte) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = data
	return s
}

// WithSlice registers a collection backed by an in-memory slice. Each
// call to Items returns a fresh iterator over the same backing slice, so
// the same collection can be bound to more than one repeat.
func (s *Static) WithSlice(name string, items []interface{}) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := append([]interface{}(nil), items...)
	s.collections[name] = func() (model.ItemIterator, error) {
		return &sliceIterator{items: snapshot}, nil
	}
	s.itemCounts[name] = len(snapshot)
	return s
}

// WithFunc registers a collection whose iterator is built on demand by
// factory, for sources that can genuinely be re-opened (e.g. a query run
// again). If the count is not known up front, omit WithItemCount and the
// renderer will buffer the collection to learn it.
func (s *Static) WithFunc(name string, factory func() (model.ItemIterator, error)) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = factory
	return s
}

// WithItemCount declares a known item count for name, letting the
// renderer skip buffering it purely to learn its size.
func (s *Static) WithItemCount(name string, count int) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.itemCounts[name] = count
	return s
}

// WithMetadata sets the document metadata returned by Metadata.
func (s *Static) WithMetadata(m model.DocumentMetadata) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = &m
	return s
}

func (s *Static) Value(name string) (model.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *Static) Items(name string) (model.ItemIterator, bool) {
	s.mu.RLock()
	factory, ok := s.collections[name]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	it, err := factory()
	if err != nil {
		return nil, false
	}
	return it, true
}

func (s *Static) Image(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[name]
	return data, ok
}

func (s *Static) ItemCount(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.itemCounts[name]
	return n, ok
}

func (s *Static) Metadata() (model.DocumentMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metadata == nil {
		return model.DocumentMetadata{}, false
	}
	return *s.metadata, true
}

func (s *Static) AvailableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values)+len(s.collections)+len(s.images))
	for n := range s.values {
		names = append(names, n)
	}
	for n := range s.collections {
		names = append(names, n)
	}
	for n := range s.images {
		names = append(names, n)
	}
	return names
}

type sliceIterator struct {
	items []interface{}
	idx   int
}

func (it *sliceIterator) Next() (interface{}, bool, error) {
	if it.idx >= len(it.items) {
		return nil, false, nil
	}
	item := it.items[it.idx]
	it.idx++
	return item, true, nil
}

func (it *sliceIterator) Close() error { return nil }
