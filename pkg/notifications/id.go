package notifications

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator issues namespaced ids of the form
// <source>-<unix millis>-<counter>-<random>. Ids are unique for the lifetime
// of the generator only; records reloaded across restarts keep the id they
// were stored with.
type IDGenerator struct {
	now     func() time.Time
	counter atomic.Uint64
}

// NewIDGenerator creates a generator. A nil clock uses time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh id tagged with src.
func (g *IDGenerator) Next(src Source) string {
	n := g.counter.Add(1)
	suffix, _, _ := strings.Cut(uuid.NewString(), "-")
	return fmt.Sprintf("%s-%d-%d-%s", src, g.now().UnixMilli(), n, suffix)
}
