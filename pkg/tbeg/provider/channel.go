package provider

// ChannelIterator adapts a Go channel to model.ItemIterator, for host
// applications that stream rows from a DB cursor or similar. Grounded on
// the teacher's ChannelDataProvider (pkg/simpleexcelv3/data_provider.go),
// which buffers consumed channel values internally so HasMoreRows/GetRow
// can be queried more than once; this adapter is deliberately simpler
// since the DataProvider contract here only requires forward iteration —
// re-callability for a second repeat binding is handled by
// pkg/tbeg/collection.Buffer spilling the first pass to disk, not by the
// iterator itself.
type ChannelIterator struct {
	ch     <-chan interface{}
	errCh  <-chan error // optional; checked once the data channel closes
	closed bool
}

// NewChannelIterator wraps ch. errCh, if non-nil, is checked for a
// terminal error once ch closes (the producer's convention: close ch
// first, then optionally push one error to errCh before closing it too).
func NewChannelIterator(ch <-chan interface{}, errCh <-chan error) *ChannelIterator {
	return &ChannelIterator{ch: ch, errCh: errCh}
}

func (c *ChannelIterator) Next() (interface{}, bool, error) {
	item, ok := <-c.ch
	if !ok {
		if c.errCh != nil {
			// Blocks until the producer pushes its error or closes errCh.
			err := <-c.errCh
			c.errCh = nil
			if err != nil {
				return nil, false, err
			}
		}
		return nil, false, nil
	}
	return item, true, nil
}

func (c *ChannelIterator) Close() error {
	c.closed = true
	return nil
}
