package factory

import (
	"time"

	"github.com/mcoot/gamesync/internal/dependencies/mocks"
	"github.com/mcoot/gamesync/internal/dependencies/random"
	"github.com/mcoot/gamesync/internal/services/matchmaking"
	"github.com/mcoot/gamesync/internal/store/memory"
	"github.com/mcoot/gamesync/internal/testutil"
)

// TestApp extends App with test-specific helpers. Every peer it creates is a
// separate connection to the same in-memory backend.
type TestApp struct {
	*App

	// Backend is the shared tree all peers connect to
	Backend *memory.Backend

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	mockRandom.Fallback = random.New()
	backend := memory.NewBackend(mockClock, testutil.NopLogger())

	t := &TestApp{
		Backend:    backend,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
	t.App = t.NewPeer()
	return t
}

// NewPeer connects another client to the shared backend. Peers share the mock
// clock and random source but each has its own identity and connection.
func (t *TestApp) NewPeer() *App {
	return newWithDependencies(
		t.Backend.Connect(),
		t.MockClock,
		t.MockRandom,
		matchmaking.DefaultConfig(),
		testutil.NopLogger(),
	)
}
