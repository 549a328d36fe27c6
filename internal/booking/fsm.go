package booking

import (
	"slices"

	"testdrive/internal/models"
)

// FSM holds the allowed booking status transitions.
type FSM struct {
	transitions map[models.Status][]models.Status
}

// NewFSM creates the test-drive lifecycle:
// PENDING -> CONFIRMED | CANCELLED, CONFIRMED -> COMPLETED | CANCELLED | NO_SHOW.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[models.Status][]models.Status{
			models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
			models.StatusConfirmed: {models.StatusCompleted, models.StatusCancelled, models.StatusNoShow},
			models.StatusCompleted: nil,
			models.StatusCancelled: nil,
			models.StatusNoShow:    nil,
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to models.Status) bool {
	return slices.Contains(f.transitions[from], to)
}

// Allowed lists the statuses reachable from from.
func (f *FSM) Allowed(from models.Status) []models.Status {
	return slices.Clone(f.transitions[from])
}
