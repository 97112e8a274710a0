package fsm

import (
	"context"
	"database/sql"
	"errors"
)

// Status constants used by the invoice state machine.
const (
	StatusDraft     = "draft"
	StatusSent      = "sent"
	StatusPaid      = "paid"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

var transitions = map[string]map[string]struct{}{
	StatusDraft: {
		StatusSent:      {},
		StatusCancelled: {},
	},
	StatusSent: {
		StatusPaid:      {},
		StatusOverdue:   {},
		StatusCancelled: {},
	},
	StatusOverdue: {
		StatusPaid:      {},
		StatusCancelled: {},
	},
	StatusPaid:      {},
	StatusCancelled: {},
}

// ErrInvalidTransition is returned when the requested status change is not
// present in the transition table.
var ErrInvalidTransition = errors.New("fsm: invalid status transition")

// CanTransition returns whether an invoice can move from the current status
// to the target status.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// IsTerminal reports whether no further transitions are accepted from status.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

// Apply updates an invoice status using a compare-and-set on the current
// status. The guard runs inside the caller's transaction, so the transition
// stays serialized across process instances without application locks.
// Losing the race surfaces as sql.ErrNoRows.
func Apply(ctx context.Context, tx *sql.Tx, invoiceID int64, fromStatus, toStatus string) error {
	if !CanTransition(fromStatus, toStatus) {
		return ErrInvalidTransition
	}
	res, err := tx.ExecContext(ctx, `UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`, toStatus, invoiceID, fromStatus)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
