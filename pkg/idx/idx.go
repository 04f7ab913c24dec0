// Package idx generates the row identifiers used by every table: ULIDs in
// their canonical 26 character form, so that ids sort by creation time.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Len is the length of a canonical id.
const Len = ulid.EncodedSize

// ErrInvalid reports a malformed id.
var ErrInvalid = errors.New("idx: invalid id")

// Generator hands out ids from a monotonic entropy source, so ids minted
// within the same millisecond still sort in generation order.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator returns a generator with its own entropy source.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewAt returns an id stamped with t.
func (g *Generator) NewAt(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t.UTC()), g.entropy).String()
}

var (
	once   sync.Once
	global *Generator
)

func shared() *Generator {
	once.Do(func() { global = NewGenerator() })
	return global
}

// New returns an id stamped with the current time.
func New() string {
	return shared().NewAt(time.Now())
}

// NewAt returns an id stamped with t from the shared generator.
func NewAt(t time.Time) string {
	return shared().NewAt(t)
}

// Parse validates s and returns it in canonical upper case.
func Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalid
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return "", ErrInvalid
	}
	return u.String(), nil
}

// Valid reports whether s is a well formed id.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Time extracts the creation timestamp, millisecond precision. Malformed
// ids yield the zero time.
func Time(s string) time.Time {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
