package retained

// MemRegion is a Region backed by a plain byte slice. Its content survives
// as long as the value does.
type MemRegion struct {
	buf     []byte
	Flushes int
}

// NewMemRegion returns a zero-filled region of Size bytes.
func NewMemRegion() *MemRegion {
	return &MemRegion{buf: make([]byte, Size)}
}

func (m *MemRegion) Bytes() []byte { return m.buf }
func (m *MemRegion) Flush() error  { m.Flushes++; return nil }
func (m *MemRegion) Close() error  { return nil }
