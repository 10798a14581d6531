package exception

import "errors"

// Reconciliation errors
var (
	ErrReconcileUnresolved = errors.New("reconcile: position gap cannot be closed")
	ErrReconcileMismatch   = errors.New("reconcile: rewritten reports do not reproduce venue position")
)
