// Package collection implements disk-backed materialization of
// unknown-length iterators (spec §4.3): once a collection bound to a
// repeat has been drained to discover its size, both the position
// calculator and the renderer need to walk it again, so its items are
// spilled to a temp file and replayed from there instead of being held
// entirely in memory or re-requested from a possibly single-shot source.
package collection

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// Buffer materializes one collection's items to a temp file, gob-encoded,
// and hands back independent replayable iterators over the same data.
// Grounded on the teacher's SliceDataProvider/ChannelDataProvider pair
// (pkg/simpleexcelv3/data_provider.go): a Buffer is the disk-backed
// counterpart to SliceDataProvider — same re-scan contract, different
// backing store, because template rendering often outlives the working
// set a single-shot provider can hold in memory.
type Buffer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	count    int
	closed   bool
	finished bool
}

// NewBuffer creates a buffer backed by a fresh temp file in dir (or the
// default temp dir if empty).
func NewBuffer(dir, namePrefix string) (*Buffer, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("tbeg-%s-*.gob", namePrefix))
	if err != nil {
		return nil, &model.PackageIoError{Op: "collection.NewBuffer", Cause: err}
	}
	return &Buffer{path: f.Name(), file: f}, nil
}

// Fill drains it into the buffer, counting items as they're written.
// Fill takes ownership of it and always closes it, even on error. Items
// are encoded as interface values, so every concrete item type other than
// the basic types gob pre-registers (string, int, float64, bool, ...) must
// be gob.Register'd by the caller, plain structs included.
func (b *Buffer) Fill(it model.ItemIterator) error {
	defer it.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return fmt.Errorf("collection buffer already filled")
	}

	w := bufio.NewWriter(b.file)
	enc := gob.NewEncoder(w)
	count := 0
	for {
		item, ok, err := it.Next()
		if err != nil {
			return &model.PackageIoError{Op: "collection.Buffer.Fill", Cause: err}
		}
		if !ok {
			break
		}
		if err := enc.Encode(&item); err != nil {
			return &model.PackageIoError{Op: "collection.Buffer.Fill.Encode", Cause: err}
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return &model.PackageIoError{Op: "collection.Buffer.Fill.Flush", Cause: err}
	}

	b.count = count
	b.finished = true
	return nil
}

// Count returns the number of items written, valid only after Fill.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Iterator returns a fresh, independent replay of the buffered items. Safe
// to call more than once and concurrently — each call opens its own file
// handle on the same temp file.
func (b *Buffer) Iterator() (model.ItemIterator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.finished {
		return nil, fmt.Errorf("collection buffer not yet filled")
	}
	f, err := os.Open(b.path)
	if err != nil {
		return nil, &model.PackageIoError{Op: "collection.Buffer.Iterator", Cause: err}
	}
	return &replayIterator{file: f, dec: gob.NewDecoder(bufio.NewReader(f))}, nil
}

// Close removes the backing temp file. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	cerr := b.file.Close()
	rerr := os.Remove(b.path)
	if cerr != nil {
		return cerr
	}
	if rerr != nil && !os.IsNotExist(rerr) {
		return rerr
	}
	return nil
}

type replayIterator struct {
	file *os.File
	dec  *gob.Decoder
}

func (r *replayIterator) Next() (interface{}, bool, error) {
	var item interface{}
	if err := r.dec.Decode(&item); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, &model.PackageIoError{Op: "collection.replayIterator.Next", Cause: err}
	}
	return item, true, nil
}

func (r *replayIterator) Close() error {
	return r.file.Close()
}
