package repository

// Template categories. Stage 1 speaks to the detected lead state, the middle
// stages send generic nudges, and the final stage closes the sequence.
const (
	CategoryStateBased = "state_based"
	CategoryGeneric    = "generic"
	CategoryFinal      = "final"
)

// Approval statuses as stored on the template row.
const (
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// CategoryForStage maps a sequence stage (1..4) to its template category.
func CategoryForStage(stage int) string {
	switch stage {
	case 1:
		return CategoryStateBased
	case 2, 3:
		return CategoryGeneric
	default:
		return CategoryFinal
	}
}
