package mocks

import (
	"strconv"
	"sync"

	"github.com/mcoot/bananaclick/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Queued strings are handed out in order; once exhausted it falls back to a
// deterministic counter so concurrent connections still get distinct IDs.
type MockRandom struct {
	mu sync.Mutex

	stringResults []string
	stringIndex   int
	fallback      int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// String returns the next queued result, or a generated one if none remain
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex < len(r.stringResults) {
		result := r.stringResults[r.stringIndex]
		r.stringIndex++
		return result
	}
	r.fallback++
	return "mock-" + strconv.Itoa(r.fallback)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	r.stringResults = append(r.stringResults, values...)
	r.mu.Unlock()
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	r.stringResults = nil
	r.stringIndex = 0
	r.fallback = 0
	r.mu.Unlock()
}
