package domain

import "time"

// OnboardingStage is one step in the guided project setup flow. Stages
// advance monotonically; there is no skipping a stage except via the
// explicit skip token, which still advances exactly one stage.
type OnboardingStage string

const (
	StageNone                OnboardingStage = "none"
	StageAwaitingProjectType OnboardingStage = "awaiting_project_type"
	StageAwaitingLocation    OnboardingStage = "awaiting_location"
	StageAwaitingStartDate   OnboardingStage = "awaiting_start_date"
	StageAwaitingBudget      OnboardingStage = "awaiting_budget"
	StageConfirmation        OnboardingStage = "confirmation"
	StageCompleted           OnboardingStage = "completed"
)

// OnboardingState is the per-user conversation state for the setup flow.
// It is loaded before and written back whole after every step; the machine
// never partially mutates a persisted record.
type OnboardingState struct {
	Stage       OnboardingStage
	Collected   map[string]string
	CompletedAt *time.Time
}

// Active reports whether the user is mid-onboarding, i.e. the dispatcher
// must route to the state machine instead of intent classification.
func (s OnboardingState) Active() bool {
	return s.Stage != StageNone && s.Stage != StageCompleted
}
