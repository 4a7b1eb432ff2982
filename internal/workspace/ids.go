package workspace

import (
	"strconv"
	"sync"
	"time"
)

// idSource hands out millisecond-timestamp ids that never repeat, even when
// two entities are created within the same millisecond.
type idSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newIDSource() *idSource {
	return &idSource{now: time.Now}
}

func (g *idSource) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return strconv.FormatInt(ms, 10)
}

// observe bumps the counter past ids loaded from storage.
func (g *idSource) observe(id string) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return
	}
	g.mu.Lock()
	if n > g.last {
		g.last = n
	}
	g.mu.Unlock()
}
