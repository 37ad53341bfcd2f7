package onboarding

import (
	"fmt"
	"strings"
	"time"

	"sitebot/internal/domain"
	"sitebot/internal/nlp"
)

// Collected field keys.
const (
	FieldProjectType = "project_type"
	FieldLocation    = "location"
	FieldStartDate   = "start_date"
	FieldBudget      = "budget"
)

var confirmTokens = map[string]bool{
	"yes": true, "y": true, "confirm": true, "ok": true, "sawa": true, "ndiyo": true,
}

var editTokens = map[string]bool{
	"edit": true, "change": true, "badilisha": true, "no": true, "n": true,
}

var deferTokens = map[string]bool{
	"later": true, "skip": true, "baadaye": true, "ruka": true,
}

// StepResult is the outcome of one onboarding step: the full new state to
// persist, the reply text, and a CreateProject mutation when the user
// confirmed.
type StepResult struct {
	State    domain.OnboardingState
	Text     string
	Mutation domain.Mutation
}

// Machine drives the linear guided-setup conversation. It is stateless:
// callers load the per-user OnboardingState before each step and persist
// the returned state whole afterwards.
type Machine struct {
	lex *nlp.Lexicon
}

func NewMachine(lex *nlp.Lexicon) *Machine {
	if lex == nil {
		lex = nlp.DefaultLexicon()
	}
	return &Machine{lex: lex}
}

// Start begins onboarding for a first-contact user.
func (m *Machine) Start() StepResult {
	return StepResult{
		State: domain.OnboardingState{
			Stage:     domain.StageAwaitingProjectType,
			Collected: map[string]string{},
		},
		Text: "Welcome to SiteBot! I'll help you set up your project.\n\n" +
			"What type of project are you running? (e.g. residential house, commercial building)\n" +
			"Reply \"skip\" to leave any answer out.",
	}
}

// Advance consumes one message while mid-onboarding. Stages advance
// monotonically; "skip" advances exactly one stage and leaves that field
// absent from the collected data.
func (m *Machine) Advance(state domain.OnboardingState, input string) StepResult {
	input = strings.TrimSpace(input)
	if state.Collected == nil {
		state.Collected = map[string]string{}
	}

	switch state.Stage {
	case domain.StageAwaitingProjectType:
		return m.record(state, FieldProjectType, input, domain.StageAwaitingLocation,
			"Where is the project located?")

	case domain.StageAwaitingLocation:
		return m.record(state, FieldLocation, input, domain.StageAwaitingStartDate,
			"When did the project start, or when will it start?")

	case domain.StageAwaitingStartDate:
		return m.record(state, FieldStartDate, input, domain.StageAwaitingBudget,
			"What is the total budget for this project?")

	case domain.StageAwaitingBudget:
		res := m.record(state, FieldBudget, input, domain.StageConfirmation, "")
		res.Text = m.summary(res.State.Collected)
		return res

	case domain.StageConfirmation:
		return m.confirm(state, input)

	default:
		// Completed or None should never reach the machine; answer safely.
		return StepResult{State: state, Text: "Your project is already set up. Send /help to see what I can do."}
	}
}

// record stores the answer (unless skipped) and advances one stage.
// Free-text fields are accepted as-is; format validation is a caller-level
// concern.
func (m *Machine) record(state domain.OnboardingState, field, input string, next domain.OnboardingStage, prompt string) StepResult {
	collected := copyCollected(state.Collected)
	if input != "" && !nlp.IsSkip(input, m.lex) {
		collected[field] = input
	}
	return StepResult{
		State: domain.OnboardingState{Stage: next, Collected: collected},
		Text:  prompt,
	}
}

func (m *Machine) confirm(state domain.OnboardingState, input string) StepResult {
	token := strings.Trim(nlp.Normalize(input), ".,!? ")

	switch {
	case confirmTokens[token]:
		now := time.Now()
		done := domain.OnboardingState{
			Stage:       domain.StageCompleted,
			Collected:   copyCollected(state.Collected),
			CompletedAt: &now,
		}
		return StepResult{
			State: done,
			Text: "Your project is set up! Start logging expenses like \"spent 500 on cement\", " +
				"add tasks with \"task: ...\", or ask \"how much have I spent\".",
			Mutation: domain.CreateProject{
				Type:      state.Collected[FieldProjectType],
				Location:  state.Collected[FieldLocation],
				StartDate: state.Collected[FieldStartDate],
				Budget:    state.Collected[FieldBudget],
			},
		}

	case editTokens[token]:
		// Wholesale restart: partial-field editing is not supported, and a
		// half-kept map would leak stale answers into the next summary.
		return StepResult{
			State: domain.OnboardingState{
				Stage:     domain.StageAwaitingProjectType,
				Collected: map[string]string{},
			},
			Text: "Let's start over. What type of project are you running?",
		}

	case deferTokens[token]:
		now := time.Now()
		return StepResult{
			State: domain.OnboardingState{
				Stage:       domain.StageCompleted,
				Collected:   copyCollected(state.Collected),
				CompletedAt: &now,
			},
			Text: "No problem, you can add project details later. You can start logging expenses right away.",
		}

	default:
		// Ask again; stage unchanged.
		return StepResult{State: state, Text: m.summary(state.Collected)}
	}
}

func (m *Machine) summary(collected map[string]string) string {
	var b strings.Builder
	b.WriteString("Here's what I have:\n")
	b.WriteString(fmt.Sprintf("• Project type: %s\n", valueOr(collected, FieldProjectType)))
	b.WriteString(fmt.Sprintf("• Location: %s\n", valueOr(collected, FieldLocation)))
	b.WriteString(fmt.Sprintf("• Start date: %s\n", valueOr(collected, FieldStartDate)))
	b.WriteString(fmt.Sprintf("• Budget: %s\n", formatBudget(collected[FieldBudget])))
	b.WriteString("\nReply \"yes\" to create the project, \"edit\" to start over, or \"later\" to skip for now.")
	return b.String()
}

// formatBudget pretty-prints the budget answer when it parses as a number;
// otherwise the raw answer is shown unchanged.
func formatBudget(raw string) string {
	if raw == "" {
		return "(not set)"
	}
	ex := nlp.Extract(raw, nlp.DefaultLexicon())
	if ex.Amount != nil {
		return domain.FormatAmount(*ex.Amount)
	}
	return raw
}

func valueOr(collected map[string]string, key string) string {
	if v := collected[key]; v != "" {
		return v
	}
	return "(not set)"
}

func copyCollected(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
