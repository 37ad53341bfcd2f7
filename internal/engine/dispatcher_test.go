package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"sitebot/internal/domain"
)

// fakeStore is an in-memory Store for dispatcher and loop tests.
type fakeStore struct {
	users    map[string]*domain.UserProfile
	acct     domain.AccountContext
	acctErr  error
	applied  []domain.Mutation
	applyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*domain.UserProfile{}}
}

func (s *fakeStore) addUser(externalID string, stage domain.OnboardingStage) *domain.UserProfile {
	u := &domain.UserProfile{
		ID:         "u-" + externalID,
		ExternalID: externalID,
		Onboarding: domain.OnboardingState{Stage: stage, Collected: map[string]string{}},
	}
	s.users[externalID] = u
	return u
}

func (s *fakeStore) LookupUser(_ context.Context, externalID string) (*domain.UserProfile, error) {
	u, ok := s.users[externalID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) RegisterUser(_ context.Context, externalID, name string) (*domain.UserProfile, error) {
	u := &domain.UserProfile{
		ID:         "u-" + externalID,
		ExternalID: externalID,
		Name:       name,
		Onboarding: domain.OnboardingState{Stage: domain.StageNone},
	}
	s.users[externalID] = u
	return u, nil
}

func (s *fakeStore) LoadAccountContext(_ context.Context, _ string) (domain.AccountContext, error) {
	if s.acctErr != nil {
		return domain.AccountContext{}, s.acctErr
	}
	return s.acct, nil
}

func (s *fakeStore) ApplyMutation(_ context.Context, _ string, m domain.Mutation) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, m)
	return nil
}

func (s *fakeStore) PersistOnboardingState(_ context.Context, userID string, state domain.OnboardingState) error {
	for _, u := range s.users {
		if u.ID == userID {
			u.Onboarding = state
			return nil
		}
	}
	return errors.New("unknown user")
}

// fakeExtractor records invocations and returns a canned result.
type fakeExtractor struct {
	calls  int
	result *domain.AIExtraction
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ domain.AccountContext) (*domain.AIExtraction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(store *fakeStore, extractor domain.AIExtractor) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Store:     store,
		Extractor: extractor,
		Logger:    testLogger(),
	})
}

func inbound(sender, content string, media ...string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:  "test",
		ChatID:   sender,
		SenderID: sender,
		Content:  content,
		Media:    media,
	}
}

func TestProcessExpenseEndToEnd(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	store.acct = domain.AccountContext{BudgetAmount: 10000, TotalSpent: 2000}
	ai := &fakeExtractor{}
	d := newDispatcher(store, ai)

	reply, err := d.Process(context.Background(), inbound("alice", "spent 500 on cement"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(reply.Mutations) != 1 {
		t.Fatalf("mutations = %d, want 1", len(reply.Mutations))
	}
	exp, ok := reply.Mutations[0].(domain.RecordExpense)
	if !ok {
		t.Fatalf("mutation = %T, want RecordExpense", reply.Mutations[0])
	}
	if exp.Amount != 500 || exp.Description != "cement" || exp.Category != "Materials" {
		t.Fatalf("unexpected expense: %+v", exp)
	}
	for _, want := range []string{"500", "cement", "7,500"} {
		if !strings.Contains(reply.Text, want) {
			t.Fatalf("reply %q missing %q", reply.Text, want)
		}
	}
	if ai.calls != 0 {
		t.Fatalf("ai extractor invoked %d times for a confident message", ai.calls)
	}
}

func TestProcessTaskPrefix(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "task: inspect foundation"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	task, ok := reply.Mutations[0].(domain.CreateTask)
	if !ok {
		t.Fatalf("mutation = %T, want CreateTask", reply.Mutations[0])
	}
	if task.Title != "inspect foundation" {
		t.Fatalf("title = %q", task.Title)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %q, want medium", task.Priority)
	}
}

func TestProcessNonsenseWithoutAI(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "xyz nonsense"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Text != helpText {
		t.Fatalf("reply = %q, want help text", reply.Text)
	}
	if len(reply.Mutations) != 0 {
		t.Fatalf("mutations = %v, want none", reply.Mutations)
	}
}

func TestProcessUnknownUser(t *testing.T) {
	d := newDispatcher(newFakeStore(), nil)

	reply, err := d.Process(context.Background(), inbound("stranger", "spent 500 on cement"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !reply.RegistrationRequired {
		t.Fatal("RegistrationRequired not set")
	}
	if len(reply.Mutations) != 0 {
		t.Fatal("unknown user must not produce mutations")
	}
}

func TestProcessGreetingStartsOnboarding(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageNone)
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "hello"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if store.users["alice"].Onboarding.Stage != domain.StageAwaitingProjectType {
		t.Fatalf("stage = %q, want awaiting_project_type", store.users["alice"].Onboarding.Stage)
	}
	if reply.Text == "" || len(reply.Mutations) != 0 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestProcessOnboardingBypassesClassification(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageAwaitingLocation)
	d := newDispatcher(store, nil)

	// Looks like an expense, but mid-onboarding it is the location answer.
	reply, err := d.Process(context.Background(), inbound("alice", "spent 500 on cement"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(reply.Mutations) != 0 {
		t.Fatal("onboarding answer must not produce a mutation")
	}
	st := store.users["alice"].Onboarding
	if st.Stage != domain.StageAwaitingStartDate {
		t.Fatalf("stage = %q, want awaiting_start_date", st.Stage)
	}
	if st.Collected["location"] != "spent 500 on cement" {
		t.Fatalf("collected = %v", st.Collected)
	}
}

func TestProcessBudgetStageToConfirmation(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageAwaitingBudget)
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "1000000"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if store.users["alice"].Onboarding.Stage != domain.StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", store.users["alice"].Onboarding.Stage)
	}
	for _, want := range []string{"1,000,000", "yes", "edit", "later"} {
		if !strings.Contains(reply.Text, want) {
			t.Fatalf("confirmation reply %q missing %q", reply.Text, want)
		}
	}
}

func TestProcessConfirmEmitsCreateProject(t *testing.T) {
	store := newFakeStore()
	u := store.addUser("alice", domain.StageConfirmation)
	u.Onboarding.Collected = map[string]string{"project_type": "house", "budget": "500000"}
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "yes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(reply.Mutations) != 1 {
		t.Fatalf("mutations = %d, want 1", len(reply.Mutations))
	}
	if _, ok := reply.Mutations[0].(domain.CreateProject); !ok {
		t.Fatalf("mutation = %T, want CreateProject", reply.Mutations[0])
	}
	st := store.users["alice"].Onboarding
	if st.Stage != domain.StageCompleted || st.CompletedAt == nil {
		t.Fatalf("completed state not persisted: %+v", st)
	}
}

func TestProcessFallbackUsed(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	amount := 450.0
	ai := &fakeExtractor{result: &domain.AIExtraction{
		Intent: domain.ParsedIntent{
			Kind:        domain.IntentLogExpense,
			Amount:      &amount,
			Description: "roofing nails",
			Confidence:  0.8,
		},
	}}
	d := newDispatcher(store, ai)

	reply, err := d.Process(context.Background(), inbound("alice", "eeh niliweka mia nne hamsini kwa misumari"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ai.calls != 1 {
		t.Fatalf("ai calls = %d, want 1", ai.calls)
	}
	exp, ok := reply.Mutations[0].(domain.RecordExpense)
	if !ok {
		t.Fatalf("mutation = %T, want RecordExpense", reply.Mutations[0])
	}
	if exp.Amount != 450 {
		t.Fatalf("amount = %v, want 450", exp.Amount)
	}
}

func TestProcessFallbackClarification(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	ai := &fakeExtractor{result: &domain.AIExtraction{
		Intent:        domain.ParsedIntent{Kind: domain.IntentLogExpense, Confidence: 0.45},
		Clarification: "How much did you spend?",
	}}
	d := newDispatcher(store, ai)

	reply, err := d.Process(context.Background(), inbound("alice", "bought stuff"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Text != "How much did you spend?" {
		t.Fatalf("reply = %q, want clarification", reply.Text)
	}
	if len(reply.Mutations) != 0 {
		t.Fatal("clarification must not carry a mutation")
	}
}

func TestProcessFallbackFailureDegradesToHelp(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	ai := &fakeExtractor{err: domain.ErrAIUnavailable}
	d := newDispatcher(store, ai)

	reply, err := d.Process(context.Background(), inbound("alice", "xyz nonsense"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Text != helpText {
		t.Fatalf("reply = %q, want help text", reply.Text)
	}
}

func TestProcessExpenseMissingAmountNoMutation(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	ai := &fakeExtractor{result: &domain.AIExtraction{
		Intent: domain.ParsedIntent{Kind: domain.IntentLogExpense, Description: "cement", Confidence: 0.7},
	}}
	d := newDispatcher(store, ai)

	reply, err := d.Process(context.Background(), inbound("alice", "bought cement for the slab"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(reply.Mutations) != 0 {
		t.Fatalf("mutations = %v; a missing amount must never be recorded", reply.Mutations)
	}
	if reply.Text != helpText {
		t.Fatalf("reply = %q, want help text", reply.Text)
	}
}

func TestProcessImage(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "east wall progress", "media-123"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	img, ok := reply.Mutations[0].(domain.StoreImage)
	if !ok {
		t.Fatalf("mutation = %T, want StoreImage", reply.Mutations[0])
	}
	if img.MediaRef != "media-123" || img.Caption != "east wall progress" {
		t.Fatalf("unexpected image mutation: %+v", img)
	}
}

func TestProcessQuery(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	store.acct = domain.AccountContext{
		BudgetAmount: 100000,
		TotalSpent:   25000,
		CategoryTotals: map[string]float64{
			"Materials": 15000,
			"Labor":     8000,
			"Transport": 1500,
			"Permits":   500,
		},
	}
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "how much have I spent"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, want := range []string{"25,000", "75,000", "Materials", "Labor", "Transport"} {
		if !strings.Contains(reply.Text, want) {
			t.Fatalf("reply %q missing %q", reply.Text, want)
		}
	}
	if strings.Contains(reply.Text, "Permits") {
		t.Fatalf("reply lists more than the top 3 categories: %q", reply.Text)
	}
	if len(reply.Mutations) != 0 {
		t.Fatal("query must not mutate")
	}
}

func TestProcessSetBudget(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "set budget 1,000,000"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	budget, ok := reply.Mutations[0].(domain.UpdateBudget)
	if !ok {
		t.Fatalf("mutation = %T, want UpdateBudget", reply.Mutations[0])
	}
	if budget.Amount != 1000000 {
		t.Fatalf("amount = %v, want 1000000", budget.Amount)
	}
	if !strings.Contains(reply.Text, "1,000,000") {
		t.Fatalf("reply %q missing formatted amount", reply.Text)
	}
}

func TestProcessContextLoadFailureStillReplies(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	store.acctErr = errors.New("db down")
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "how much have I spent"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Text == "" {
		t.Fatal("handler must stay total under missing context")
	}
}

func TestProcessSlashCommands(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	d := newDispatcher(store, nil)

	reply, err := d.Process(context.Background(), inbound("alice", "/help"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply.Text != helpText {
		t.Fatalf("reply = %q, want help text", reply.Text)
	}

	reply, err = d.Process(context.Background(), inbound("alice", "/version"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(reply.Text, "SiteBot") {
		t.Fatalf("version reply = %q", reply.Text)
	}
}

func TestProcessSingleMutationInvariant(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", domain.StageCompleted)
	d := newDispatcher(store, nil)

	msgs := []domain.InboundMessage{
		inbound("alice", "spent 500 on cement"),
		inbound("alice", "task: order sand"),
		inbound("alice", "set budget 9000"),
		inbound("alice", "how much have I spent"),
		inbound("alice", "hello there what's up"),
	}
	for _, msg := range msgs {
		reply, err := d.Process(context.Background(), msg)
		if err != nil {
			t.Fatalf("Process(%q): %v", msg.Content, err)
		}
		if len(reply.Mutations) > 1 {
			t.Fatalf("Process(%q) produced %d mutations", msg.Content, len(reply.Mutations))
		}
	}
}
