package experiment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Validation and lookup errors are caller-visible; a malformed test is
// never silently corrected.
var (
	ErrInvalidTest    = errors.New("invalid experiment configuration")
	ErrTestNotFound   = errors.New("experiment not found")
	ErrTestStopped    = errors.New("experiment is stopped")
	ErrUnknownVariant = errors.New("unknown variant")
)

// Status of an A/B test.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// StrategyVariant is one parameterized strategy configuration under test.
type StrategyVariant struct {
	VariantID     string         `json:"variant_id"`
	Name          string         `json:"name"`
	Params        map[string]any `json:"params,omitempty"`
	AllocationPct float64        `json:"allocation_pct"`
	IsControl     bool           `json:"is_control"`
}

// ABTest is a controlled comparison between a control variant and one or
// more challengers.
type ABTest struct {
	TestID     string                     `json:"test_id"`
	Name       string                     `json:"name"`
	Variants   map[string]StrategyVariant `json:"variants"`
	StartTime  time.Time                  `json:"start_time"`
	Duration   time.Duration              `json:"duration"`
	MinSamples int                        `json:"min_samples"`
	Status     Status                     `json:"status"`
}

// Result is one realized-PnL observation, append-only per test.
type Result struct {
	TestID    string         `json:"test_id"`
	VariantID string         `json:"variant_id"`
	Symbol    string         `json:"symbol"`
	PnL       float64        `json:"pnl"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Manager runs A/B tests: it validates configuration, assigns variants by
// allocation, collects results and produces significance-gated reports.
// Concurrent recordResult calls for the same test serialize on the lock.
type Manager struct {
	mu      sync.Mutex
	tests   map[string]*ABTest
	results map[string][]Result
	rng     *rand.Rand

	now func() time.Time
}

// NewManager builds a manager. rng may be nil, in which case assignments
// draw from a time-seeded source; tests pass a seeded one for
// deterministic draws.
func NewManager(rng *rand.Rand) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Manager{
		tests:   make(map[string]*ABTest),
		results: make(map[string][]Result),
		rng:     rng,
		now:     time.Now,
	}
}

// CreateTest validates and registers a new A/B test. Allocations must sum
// to 100 (±0.01) and exactly one variant must be the control.
func (m *Manager) CreateTest(name string, variants []StrategyVariant, duration time.Duration, minSamples int) (string, error) {
	if len(variants) < 2 {
		return "", fmt.Errorf("%w: need at least 2 variants, got %d", ErrInvalidTest, len(variants))
	}
	totalAllocation := 0.0
	controls := 0
	byID := make(map[string]StrategyVariant, len(variants))
	for _, v := range variants {
		if v.VariantID == "" {
			return "", fmt.Errorf("%w: variant without id", ErrInvalidTest)
		}
		if _, dup := byID[v.VariantID]; dup {
			return "", fmt.Errorf("%w: duplicate variant id %s", ErrInvalidTest, v.VariantID)
		}
		byID[v.VariantID] = v
		totalAllocation += v.AllocationPct
		if v.IsControl {
			controls++
		}
	}
	if math.Abs(totalAllocation-100) > 0.01 {
		return "", fmt.Errorf("%w: total allocation must be 100%%, got %.4f%%", ErrInvalidTest, totalAllocation)
	}
	if controls != 1 {
		return "", fmt.Errorf("%w: must have exactly 1 control variant, got %d", ErrInvalidTest, controls)
	}
	if minSamples < 2 {
		return "", fmt.Errorf("%w: min_samples must be >= 2, got %d", ErrInvalidTest, minSamples)
	}

	testID := uuid.NewString()
	m.mu.Lock()
	m.tests[testID] = &ABTest{
		TestID:     testID,
		Name:       name,
		Variants:   byID,
		StartTime:  m.now().UTC(),
		Duration:   duration,
		MinSamples: minSamples,
		Status:     StatusRunning,
	}
	m.results[testID] = nil
	m.mu.Unlock()
	return testID, nil
}

// AssignVariant draws a variant with probability proportional to its
// allocation. Deterministic given a seeded rng.
func (m *Manager) AssignVariant(testID, symbol string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	test, ok := m.tests[testID]
	if !ok {
		return "", ErrTestNotFound
	}
	if test.Status == StatusStopped {
		return "", ErrTestStopped
	}
	ids := make([]string, 0, len(test.Variants))
	for id := range test.Variants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	target := m.rng.Float64() * 100
	acc := 0.0
	for _, id := range ids {
		acc += test.Variants[id].AllocationPct
		if target < acc {
			return id, nil
		}
	}
	return ids[len(ids)-1], nil
}

// RecordResult appends a realized-PnL observation for a variant.
func (m *Manager) RecordResult(testID, variantID, symbol string, pnl float64, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	test, ok := m.tests[testID]
	if !ok {
		return ErrTestNotFound
	}
	if test.Status == StatusStopped {
		return ErrTestStopped
	}
	if _, ok := test.Variants[variantID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariant, variantID)
	}
	m.results[testID] = append(m.results[testID], Result{
		TestID:    testID,
		VariantID: variantID,
		Symbol:    symbol,
		PnL:       pnl,
		Timestamp: m.now().UTC(),
		Metadata:  metadata,
	})
	return nil
}

// StopTest marks a test stopped. Further results are rejected.
func (m *Manager) StopTest(testID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	test, ok := m.tests[testID]
	if !ok {
		return ErrTestNotFound
	}
	test.Status = StatusStopped
	return nil
}

// GetTest returns a snapshot of a registered test.
func (m *Manager) GetTest(testID string) (ABTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	test, ok := m.tests[testID]
	if !ok {
		return ABTest{}, ErrTestNotFound
	}
	return *test, nil
}

// ListTests returns snapshots of all registered tests, ordered by start
// time then id.
func (m *Manager) ListTests() []ABTest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ABTest, 0, len(m.tests))
	for _, test := range m.tests {
		out = append(out, *test)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].TestID < out[j].TestID
	})
	return out
}
