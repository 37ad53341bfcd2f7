package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sitebot/internal/domain"
	"sitebot/internal/nlp"
	"sitebot/internal/onboarding"
)

const (
	defaultFallbackThreshold = 0.6
	defaultClarifyThreshold  = 0.55
)

// Dispatcher is the orchestrator: it resolves the sender to a user, routes
// mid-onboarding messages to the state machine, and otherwise runs the
// classify -> (fallback) -> handler pipeline. It performs no message I/O;
// each inbound message yields exactly one ConversationReply carrying at
// most one mutation.
type Dispatcher struct {
	store      domain.Store
	classifier *nlp.Classifier
	categories *nlp.Resolver
	machine    *onboarding.Machine
	extractor  domain.AIExtractor // nil when the AI fallback is disabled

	fallbackThreshold float64
	clarifyThreshold  float64
	logger            *slog.Logger
}

type DispatcherConfig struct {
	Store             domain.Store
	Classifier        *nlp.Classifier
	Categories        *nlp.Resolver
	Machine           *onboarding.Machine
	Extractor         domain.AIExtractor
	FallbackThreshold float64
	ClarifyThreshold  float64
	Logger            *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Classifier == nil {
		cfg.Classifier = nlp.NewClassifier(nil, cfg.Logger)
	}
	if cfg.Categories == nil {
		cfg.Categories = nlp.NewResolver(cfg.Classifier.Lexicon())
	}
	if cfg.Machine == nil {
		cfg.Machine = onboarding.NewMachine(cfg.Classifier.Lexicon())
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = defaultFallbackThreshold
	}
	if cfg.ClarifyThreshold <= 0 {
		cfg.ClarifyThreshold = defaultClarifyThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		store:             cfg.Store,
		classifier:        cfg.Classifier,
		categories:        cfg.Categories,
		machine:           cfg.Machine,
		extractor:         cfg.Extractor,
		fallbackThreshold: cfg.FallbackThreshold,
		clarifyThreshold:  cfg.ClarifyThreshold,
		logger:            cfg.Logger,
	}
}

// Process handles one inbound message to completion and returns the reply
// plus at most one mutation for the caller to apply.
func (d *Dispatcher) Process(ctx context.Context, msg domain.InboundMessage) (domain.ConversationReply, error) {
	user, err := d.store.LookupUser(ctx, msg.SenderID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ConversationReply{Text: registrationText, RegistrationRequired: true}, nil
	}
	if err != nil {
		return domain.ConversationReply{}, fmt.Errorf("lookup user: %w", err)
	}

	// Mid-onboarding messages go to the state machine exclusively.
	if user.Onboarding.Active() {
		return d.onboardingStep(ctx, user, func() onboarding.StepResult {
			return d.machine.Advance(user.Onboarding, msg.Content)
		})
	}

	lex := d.classifier.Lexicon()
	if user.Onboarding.Stage == domain.StageNone && nlp.IsGreeting(msg.Content, lex) {
		return d.onboardingStep(ctx, user, d.machine.Start)
	}

	if text, handled := d.handleCommand(ctx, user, msg.Content); handled {
		return domain.ConversationReply{Text: text}, nil
	}

	intent := d.classifier.Classify(msg.Content, len(msg.Media))
	acct := d.loadContext(ctx, user.ID)

	if intent.Confidence < d.fallbackThreshold {
		var clarification string
		intent, clarification = d.fallback(ctx, msg.Content, intent, acct)
		if clarification != "" {
			return domain.ConversationReply{Text: clarification}, nil
		}
		// Still too uncertain to act on: better a false Unknown than a
		// wrong structured action on money.
		if intent.Confidence < d.clarifyThreshold {
			intent = domain.ParsedIntent{Kind: domain.IntentUnknown}
		}
	}

	return d.dispatch(intent, msg, acct), nil
}

// fallback consults the AI extractor when classification confidence is too
// low. One attempt; any failure keeps the deterministic result. A non-empty
// second return value is a clarification question to send instead of acting.
func (d *Dispatcher) fallback(ctx context.Context, text string, deterministic domain.ParsedIntent, acct domain.AccountContext) (domain.ParsedIntent, string) {
	if d.extractor == nil {
		return deterministic, ""
	}

	res, err := d.extractor.Extract(ctx, text, acct)
	if err != nil {
		d.logger.Warn("ai fallback unavailable, degrading to deterministic result", "err", err)
		return deterministic, ""
	}

	if res.Clarification != "" && res.Intent.Confidence < d.clarifyThreshold {
		return deterministic, res.Clarification
	}

	d.logger.Debug("ai fallback extraction used",
		"kind", res.Intent.Kind, "confidence", res.Intent.Confidence)
	return res.Intent, ""
}

func (d *Dispatcher) dispatch(intent domain.ParsedIntent, msg domain.InboundMessage, acct domain.AccountContext) domain.ConversationReply {
	switch intent.Kind {
	case domain.IntentLogExpense:
		return d.handleExpense(intent, acct)
	case domain.IntentCreateTask:
		return d.handleTask(intent)
	case domain.IntentSetBudget:
		return d.handleBudget(intent)
	case domain.IntentQueryExpenses:
		return d.handleQuery(acct)
	case domain.IntentLogImage:
		return d.handleImage(intent, msg)
	default:
		return domain.ConversationReply{Text: helpText}
	}
}

// onboardingStep runs one state machine step and persists the whole new
// state before replying.
func (d *Dispatcher) onboardingStep(ctx context.Context, user *domain.UserProfile, step func() onboarding.StepResult) (domain.ConversationReply, error) {
	res := step()
	if err := d.store.PersistOnboardingState(ctx, user.ID, res.State); err != nil {
		return domain.ConversationReply{}, fmt.Errorf("persist onboarding state: %w", err)
	}

	reply := domain.ConversationReply{Text: res.Text}
	if res.Mutation != nil {
		reply.Mutations = []domain.Mutation{res.Mutation}
	}
	return reply, nil
}

// loadContext fetches account context; handlers must stay total, so a
// load failure degrades to an empty context instead of failing the reply.
func (d *Dispatcher) loadContext(ctx context.Context, userID string) domain.AccountContext {
	acct, err := d.store.LoadAccountContext(ctx, userID)
	if err != nil {
		d.logger.Warn("account context unavailable", "user", userID, "err", err)
		return domain.AccountContext{}
	}
	return acct
}
