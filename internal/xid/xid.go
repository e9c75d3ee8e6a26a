package xid

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixProductSale = "TRX"
	PrefixServiceSale = "SRV"
)

// New returns a random entity id prefixed with the given kind, e.g. "prod".
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

// Sequence hands out sale ids of the form PREFIX-NNNNNN-XXXXXXXX. NNNNNN is
// the low six digits of the millisecond clock, which only moves forward, and
// XXXXXXXX is random. The six digits wrap every 1000 seconds, so the suffix
// keeps ids unique across the whole ledger and across restarts.
type Sequence struct {
	mu     sync.Mutex
	now    func() time.Time
	suffix func() string
	lastMs int64
}

func NewSequence(now func() time.Time) *Sequence {
	if now == nil {
		now = time.Now
	}
	return &Sequence{now: now, suffix: randomSuffix}
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Sequence) Next(prefix string) string {
	s.mu.Lock()
	ms := s.now().UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	s.mu.Unlock()

	return fmt.Sprintf("%s-%06d-%s", prefix, ms%1_000_000, s.suffix())
}
