package domain

// Mutation is a single domain state change for the persistence layer to
// apply. The engine never applies mutations itself; it returns at most one
// per inbound message so replies and effects stay traceable 1:1.
type Mutation interface {
	MutationKind() string
}

type RecordExpense struct {
	Amount      float64
	Description string
	Category    string
}

type CreateTask struct {
	Title    string
	Priority Priority
}

type UpdateBudget struct {
	Amount float64
}

type CreateProject struct {
	Type      string
	Location  string
	StartDate string
	Budget    string
}

type StoreImage struct {
	MediaRef string
	Caption  string
}

func (RecordExpense) MutationKind() string { return "record_expense" }
func (CreateTask) MutationKind() string    { return "create_task" }
func (UpdateBudget) MutationKind() string  { return "update_budget" }
func (CreateProject) MutationKind() string { return "create_project" }
func (StoreImage) MutationKind() string    { return "store_image" }

// ConversationReply is the sole output of the dispatcher: one reply text
// and zero or one mutations. The caller applies the mutations and delivers
// the text; the dispatcher performs no I/O.
type ConversationReply struct {
	Text                 string
	Mutations            []Mutation
	RegistrationRequired bool
}
