package link

import (
	"fmt"
	"sync/atomic"
)

// Stats are link counters.
type Stats struct {
	FramesIn     uint64
	FramesOut    uint64
	BytesIn      uint64
	BytesOut     uint64
	Resyncs      uint64
	CRCErrors    uint64
	Unmatched    uint64
	Timeouts     uint64
	Reconnects   uint64
	WriteErrors  uint64
	ReadErrors   uint64
	Notifies     uint64
	NotifyDrops  uint64
	PeerRequests uint64
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("in=%d/%dB out=%d/%dB resync=%d crc=%d unmatched=%d timeouts=%d reconnects=%d",
		s.FramesIn, s.BytesIn, s.FramesOut, s.BytesOut, s.Resyncs, s.CRCErrors,
		s.Unmatched, s.Timeouts, s.Reconnects)
}

type counters struct {
	stats Stats
}

func (c *counters) add(p *uint64, n uint64) {
	atomic.AddUint64(p, n)
}

func (c *counters) snapshot() (s Stats) {
	s.FramesIn = atomic.LoadUint64(&c.stats.FramesIn)
	s.FramesOut = atomic.LoadUint64(&c.stats.FramesOut)
	s.BytesIn = atomic.LoadUint64(&c.stats.BytesIn)
	s.BytesOut = atomic.LoadUint64(&c.stats.BytesOut)
	s.Resyncs = atomic.LoadUint64(&c.stats.Resyncs)
	s.CRCErrors = atomic.LoadUint64(&c.stats.CRCErrors)
	s.Unmatched = atomic.LoadUint64(&c.stats.Unmatched)
	s.Timeouts = atomic.LoadUint64(&c.stats.Timeouts)
	s.Reconnects = atomic.LoadUint64(&c.stats.Reconnects)
	s.WriteErrors = atomic.LoadUint64(&c.stats.WriteErrors)
	s.ReadErrors = atomic.LoadUint64(&c.stats.ReadErrors)
	s.Notifies = atomic.LoadUint64(&c.stats.Notifies)
	s.NotifyDrops = atomic.LoadUint64(&c.stats.NotifyDrops)
	s.PeerRequests = atomic.LoadUint64(&c.stats.PeerRequests)
	return
}
