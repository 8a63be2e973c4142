package tracker

import (
	"sync"

	"github.com/roidota/roidota/internal/hub/core/model"
)

// DefaultRecentLogs is the number of lines RecentLogs returns when asked for n <= 0.
const DefaultRecentLogs = 100

// LogBuffer keeps the most recent log lines of each device in a fixed-size ring.
type LogBuffer struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

type ring struct {
	entries []model.DeviceLogEntry
	next    int
	full    bool
}

// NewLogBuffer retains up to size lines per device.
func NewLogBuffer(size int) *LogBuffer {
	if size < 1 {
		size = 1
	}
	return &LogBuffer{size: size, rings: make(map[string]*ring)}
}

// Append stores e, evicting the device's oldest line when its ring is full.
func (b *LogBuffer) Append(e model.DeviceLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[e.DeviceID]
	if !ok {
		r = &ring{entries: make([]model.DeviceLogEntry, b.size)}
		b.rings[e.DeviceID] = r
	}
	r.entries[r.next] = e
	r.next = (r.next + 1) % b.size
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to n of the device's newest lines, oldest first.
func (b *LogBuffer) Recent(deviceID string, n int) []model.DeviceLogEntry {
	if n <= 0 {
		n = DefaultRecentLogs
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[deviceID]
	if !ok {
		return nil
	}

	count := r.next
	if r.full {
		count = b.size
	}
	if n > count {
		n = count
	}

	out := make([]model.DeviceLogEntry, 0, n)
	start := (r.next - n + b.size) % b.size
	for i := 0; i < n; i++ {
		out = append(out, r.entries[(start+i)%b.size])
	}
	return out
}
