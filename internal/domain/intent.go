package domain

// IntentKind labels what a message is asking the bot to do.
type IntentKind string

const (
	IntentLogExpense    IntentKind = "log_expense"
	IntentCreateTask    IntentKind = "create_task"
	IntentSetBudget     IntentKind = "set_budget"
	IntentQueryExpenses IntentKind = "query_expenses"
	IntentLogImage      IntentKind = "log_image"
	IntentUnknown       IntentKind = "unknown"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsedIntent is the structured reading of one message. Amount is nil
// when no amount was found; callers must treat nil as "insufficient data",
// never as zero.
type ParsedIntent struct {
	Kind        IntentKind
	Amount      *float64
	Description string
	Priority    Priority
	Confidence  float64 // in [0,1]; rule-intrinsic, used only for threshold checks
}
