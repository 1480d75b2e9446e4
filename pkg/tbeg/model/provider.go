package model

// ItemIterator yields one collection's items. Implementations must be
// re-callable: per the open question in spec §9, if the same collection is
// bound to more than one repeat, the renderer calls DataProvider.Items
// again for the second repeat, so a provider backed by a single-shot
// source (e.g. a channel) must hand back a fresh iterator each call.
type ItemIterator interface {
	// Next returns the next item, or ok=false when exhausted.
	Next() (item interface{}, ok bool, err error)
	// Close releases any resources the iterator holds.
	Close() error
}

// DocumentMetadata carries the document properties MetadataWriter writes
// into the output package.
type DocumentMetadata struct {
	Title       string
	Author      string
	Subject     string
	Keywords    []string
	Description string
	Category    string
	Company     string
	Manager     string
}

// DataProvider is the capability surface the core consumes from the host
// application. Value/Items/Image return a not-ok/nil result to denote an
// absent name — the core never treats "absent" and "error" the same way.
type DataProvider interface {
	// Value resolves a scalar variable by name.
	Value(name string) (Value, bool)
	// Items returns a fresh iterator over a named collection, or
	// ok=false if the name is not a known collection.
	Items(name string) (ItemIterator, bool)
	// Image returns the raw bytes of a named image, or ok=false if
	// absent. Image type is sniffed from magic bytes by the caller.
	Image(name string) ([]byte, bool)
	// ItemCount is an optional fast path: when it returns ok=true the
	// renderer can skip buffering the collection to learn its size.
	ItemCount(name string) (int, bool)
	// Metadata returns document properties, if the provider has any.
	Metadata() (DocumentMetadata, bool)
	// AvailableNames lists every variable/collection/image name the
	// provider currently knows how to resolve, for diagnostics.
	AvailableNames() []string
}
