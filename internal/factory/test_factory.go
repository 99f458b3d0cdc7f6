package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/bananaclick/internal/dependencies/mocks"
	"github.com/mcoot/bananaclick/internal/realtime"
	"github.com/mcoot/bananaclick/internal/services/auth"
	"github.com/mcoot/bananaclick/internal/storage/memory"
	"github.com/mcoot/bananaclick/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// Call Start before connecting clients.
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	authCfg := auth.Config{
		Secret:        "test-secret",
		TokenDuration: time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
	app := newWithDependencies(store, mockClock, mockRandom, authCfg, 0, realtime.DefaultWSConfig(), testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}
}
