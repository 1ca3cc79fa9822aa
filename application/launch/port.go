package launch

import "sync/atomic"

// DefaultBasePort is the first port handed out by the process-wide allocator.
const DefaultBasePort = 8080

// PortAllocator hands out consecutive ports. Every call to Next returns a
// distinct value, with no gaps, regardless of how many goroutines call it.
// Ports are never reused or released.
type PortAllocator struct {
	next atomic.Int64
}

// NewPortAllocator returns an allocator whose first port is base.
func NewPortAllocator(base int) *PortAllocator {
	a := &PortAllocator{}
	a.next.Store(int64(base))
	return a
}

// Next returns the next unused port.
func (a *PortAllocator) Next() int {
	return int(a.next.Add(1) - 1)
}

var processPorts = NewPortAllocator(DefaultBasePort)

// NextPort returns the next port from the process-wide allocator.
func NextPort() int {
	return processPorts.Next()
}
