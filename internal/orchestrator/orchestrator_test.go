package orchestrator

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeProviderStore struct {
	configs     []domain.ProviderConfig
	listCalls   int
	incremented map[string]int
	resets      map[string]time.Time
}

func (f *fakeProviderStore) ListActive() ([]domain.ProviderConfig, error) {
	f.listCalls++
	sorted := make([]domain.ProviderConfig, len(f.configs))
	copy(sorted, f.configs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return sorted, nil
}

func (f *fakeProviderStore) IncrementUsage(id string) error {
	if f.incremented == nil {
		f.incremented = make(map[string]int)
	}
	f.incremented[id]++
	return nil
}

func (f *fakeProviderStore) ResetUsage(id string, day time.Time) error {
	if f.resets == nil {
		f.resets = make(map[string]time.Time)
	}
	f.resets[id] = day
	for i := range f.configs {
		if f.configs[i].ID == id {
			f.configs[i].UsedToday = 0
			f.configs[i].LastReset = day
		}
	}
	return nil
}

type fakeUsageStore struct {
	rows []domain.GenerationResult
}

func (f *fakeUsageStore) Append(res domain.GenerationResult) error {
	f.rows = append(f.rows, res)
	return nil
}

type fakeCatalog struct {
	services []domain.Service
	packages []domain.Package
	methods  []domain.PaymentMethod
}

func (f *fakeCatalog) ActiveServices() ([]domain.Service, error)             { return f.services, nil }
func (f *fakeCatalog) ActivePackages() ([]domain.Package, error)             { return f.packages, nil }
func (f *fakeCatalog) ActivePaymentMethods() ([]domain.PaymentMethod, error) { return f.methods, nil }

// newTestOrchestrator wires an orchestrator whose clients are mocks keyed by
// provider ID.
func newTestOrchestrator(t *testing.T, store *fakeProviderStore, mocks map[string]*provider.MockClient) (*Orchestrator, *fakeUsageStore) {
	t.Helper()
	usage := &fakeUsageStore{}
	o := New(Config{}, store, usage, &fakeCatalog{}, logging.Nop())
	o.newClient = func(cfg domain.ProviderConfig) (provider.Client, error) {
		mock, ok := mocks[cfg.ID]
		require.True(t, ok, "no mock for provider %s", cfg.ID)
		return mock, nil
	}
	require.NoError(t, o.Reload())
	return o, usage
}

// --- tests ---

func TestGenerateUsesHighestPriorityAvailable(t *testing.T) {
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "low", Kind: domain.ProviderOllama, Priority: 10, DailyLimit: 5, Active: true},
		{ID: "high", Kind: domain.ProviderOpenAI, Priority: 30, DailyLimit: 5, Active: true},
	}}
	mocks := map[string]*provider.MockClient{
		"low":  {ID: "low", KindVal: domain.ProviderOllama},
		"high": {ID: "high", KindVal: domain.ProviderOpenAI},
	}
	o, usage := newTestOrchestrator(t, store, mocks)

	res, err := o.Generate(context.Background(), Conversation{Turns: []domain.Turn{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "high", res.ProviderID)
	assert.Equal(t, 0, mocks["low"].Calls())
	assert.Len(t, usage.rows, 1)
	assert.Equal(t, 1, store.incremented["high"])
}

func TestGenerateDrainsPoolInPriorityOrder(t *testing.T) {
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "p30", Kind: domain.ProviderOpenAI, Priority: 30, DailyLimit: 5, Active: true},
		{ID: "p20", Kind: domain.ProviderAnthropic, Priority: 20, DailyLimit: 5, Active: true},
		{ID: "p10", Kind: domain.ProviderGemini, Priority: 10, DailyLimit: 5, Active: true},
	}}
	mocks := map[string]*provider.MockClient{
		"p30": {ID: "p30", KindVal: domain.ProviderOpenAI},
		"p20": {ID: "p20", KindVal: domain.ProviderAnthropic},
		"p10": {ID: "p10", KindVal: domain.ProviderGemini},
	}
	o, _ := newTestOrchestrator(t, store, mocks)

	convo := Conversation{Turns: []domain.Turn{{Role: "user", Content: "hi"}}}
	var got []string
	for i := 0; i < 15; i++ {
		res, err := o.Generate(context.Background(), convo)
		require.NoError(t, err, "generation %d", i+1)
		got = append(got, res.ProviderID)
	}

	want := []string{
		"p30", "p30", "p30", "p30", "p30",
		"p20", "p20", "p20", "p20", "p20",
		"p10", "p10", "p10", "p10", "p10",
	}
	assert.Equal(t, want, got)

	// The 16th request finds nothing left.
	_, err := o.Generate(context.Background(), convo)
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
}

func TestGenerateAllExhaustedImmediately(t *testing.T) {
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "p1", Kind: domain.ProviderOpenAI, Priority: 10, DailyLimit: 3, UsedToday: 3, Active: true},
	}}
	mocks := map[string]*provider.MockClient{"p1": {ID: "p1", KindVal: domain.ProviderOpenAI}}
	o, _ := newTestOrchestrator(t, store, mocks)

	_, err := o.Generate(context.Background(), Conversation{Turns: []domain.Turn{{Role: "user", Content: "hi"}}})
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.Equal(t, 0, mocks["p1"].Calls(), "no provider should be invoked")
}

func TestGenerateFailedProviderExcludedWithinCall(t *testing.T) {
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "flaky", Kind: domain.ProviderOpenAI, Priority: 30, DailyLimit: 5, Active: true},
		{ID: "steady", Kind: domain.ProviderGemini, Priority: 20, DailyLimit: 5, Active: true},
	}}
	mocks := map[string]*provider.MockClient{
		"flaky":  {ID: "flaky", KindVal: domain.ProviderOpenAI, Err: &provider.Error{Provider: "openai", Code: 500, Message: "boom"}},
		"steady": {ID: "steady", KindVal: domain.ProviderGemini},
	}
	o, _ := newTestOrchestrator(t, store, mocks)

	convo := Conversation{Turns: []domain.Turn{{Role: "user", Content: "hi"}}}
	res, err := o.Generate(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "steady", res.ProviderID)
	assert.Equal(t, 1, mocks["flaky"].Calls())

	// The tripped provider stays excluded on later calls too, until reload.
	res, err = o.Generate(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "steady", res.ProviderID)
	assert.Equal(t, 1, mocks["flaky"].Calls())

	var tripped bool
	for _, st := range o.Stats() {
		if st.ID == "flaky" {
			tripped = st.Tripped
		}
	}
	assert.True(t, tripped)

	// Reload clears the trip marker.
	require.NoError(t, o.Reload())
	res, err = o.Generate(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "steady", res.ProviderID)
	assert.Equal(t, 2, mocks["flaky"].Calls())
}

func TestGenerateRetryBudgetExhausted(t *testing.T) {
	boom := errors.New("backend down")
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "a", Kind: domain.ProviderOpenAI, Priority: 30, DailyLimit: 5, Active: true},
		{ID: "b", Kind: domain.ProviderAnthropic, Priority: 20, DailyLimit: 5, Active: true},
		{ID: "c", Kind: domain.ProviderGemini, Priority: 10, DailyLimit: 5, Active: true},
	}}
	mocks := map[string]*provider.MockClient{
		"a": {ID: "a", KindVal: domain.ProviderOpenAI, Err: boom},
		"b": {ID: "b", KindVal: domain.ProviderAnthropic, Err: boom},
		"c": {ID: "c", KindVal: domain.ProviderGemini, Err: boom},
	}
	o, _ := newTestOrchestrator(t, store, mocks)

	_, err := o.Generate(context.Background(), Conversation{Turns: []domain.Turn{{Role: "user", Content: "hi"}}})
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 3, genErr.Attempts)
	assert.ErrorIs(t, genErr, boom)
}

func TestGenerateBoundsHistory(t *testing.T) {
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "p1", Kind: domain.ProviderOpenAI, Priority: 10, DailyLimit: 50, Active: true},
	}}
	mocks := map[string]*provider.MockClient{"p1": {ID: "p1", KindVal: domain.ProviderOpenAI}}
	o, _ := newTestOrchestrator(t, store, mocks)

	var turns []domain.Turn
	for i := 0; i < 25; i++ {
		turns = append(turns, domain.Turn{Role: "user", Content: "turn"})
	}
	turns[24].Content = "latest"

	_, err := o.Generate(context.Background(), Conversation{Turns: turns})
	require.NoError(t, err)

	sent := mocks["p1"].LastRequest().History
	require.Len(t, sent, 10, "history is bounded to the most recent turns")
	assert.Equal(t, "latest", sent[9].Content)
}

func TestResetStaleZeroesCountersAndReloads(t *testing.T) {
	yesterday := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "stale", Kind: domain.ProviderOpenAI, Priority: 20, DailyLimit: 5, UsedToday: 5, LastReset: yesterday, Active: true},
		{ID: "fresh", Kind: domain.ProviderGemini, Priority: 10, DailyLimit: 5, UsedToday: 2, LastReset: yesterday.AddDate(0, 0, 1), Active: true},
	}}
	mocks := map[string]*provider.MockClient{
		"stale": {ID: "stale", KindVal: domain.ProviderOpenAI},
		"fresh": {ID: "fresh", KindVal: domain.ProviderGemini},
	}
	o, _ := newTestOrchestrator(t, store, mocks)
	o.now = func() time.Time { return time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC) }

	listCallsBefore := store.listCalls
	require.NoError(t, o.ResetStale())

	require.Contains(t, store.resets, "stale")
	assert.NotContains(t, store.resets, "fresh")
	assert.Greater(t, store.listCalls, listCallsBefore, "reset reloads the pool")

	// The previously exhausted provider is available again.
	res, err := o.Generate(context.Background(), Conversation{Turns: []domain.Turn{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "stale", res.ProviderID)
}

func TestResetStaleCoversUnpooledProviders(t *testing.T) {
	yesterday := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeProviderStore{configs: []domain.ProviderConfig{
		{ID: "good", Kind: domain.ProviderOpenAI, Priority: 20, DailyLimit: 5, UsedToday: 5, LastReset: yesterday, Active: true},
		{ID: "broken", Kind: domain.ProviderGemini, Priority: 10, DailyLimit: 5, UsedToday: 4, LastReset: yesterday, Active: true},
	}}
	o := New(Config{}, store, &fakeUsageStore{}, &fakeCatalog{}, logging.Nop())
	o.newClient = func(cfg domain.ProviderConfig) (provider.Client, error) {
		if cfg.ID == "broken" {
			return nil, errors.New("bad endpoint")
		}
		return &provider.MockClient{ID: cfg.ID, KindVal: cfg.Kind}, nil
	}
	require.NoError(t, o.Reload())
	o.now = func() time.Time { return time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC) }

	require.NoError(t, o.ResetStale())

	// The provider that never made the pool gets its counter reset too.
	assert.Contains(t, store.resets, "good")
	assert.Contains(t, store.resets, "broken")
	assert.Zero(t, store.configs[1].UsedToday)
}

func TestBuildSystemPromptRendersCatalogAndContext(t *testing.T) {
	catalog := &fakeCatalog{
		services: []domain.Service{{ID: "s1", Name: "Design", Description: "Logos"}},
		packages: []domain.Package{{ID: "pk1", ServiceID: "s1", Name: "Basic", Price: 25, Currency: "USD"}},
		methods:  []domain.PaymentMethod{{ID: "pm1", Name: "Bank transfer", Account: "0012345"}},
	}
	o := New(Config{}, &fakeProviderStore{}, &fakeUsageStore{}, catalog, logging.Nop())

	prompt, err := o.buildSystemPrompt(domain.CustomerContext{
		Name:     "Alice",
		Language: "en",
		Intent:   "pricing",
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, defaultBasePrompt)
	assert.Contains(t, prompt, "Design: Logos")
	assert.Contains(t, prompt, "Basic (Design): 25.00 USD")
	assert.Contains(t, prompt, "Bank transfer (0012345)")
	assert.Contains(t, prompt, "Name: Alice")
	assert.Contains(t, prompt, "Current intent: pricing")
}

func TestBuildSystemPromptUsesConfiguredBase(t *testing.T) {
	o := New(Config{BasePrompt: "Custom rules here."}, &fakeProviderStore{}, &fakeUsageStore{}, &fakeCatalog{}, logging.Nop())

	prompt, err := o.buildSystemPrompt(domain.CustomerContext{})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Custom rules here.")
	assert.NotContains(t, prompt, defaultBasePrompt)
}
