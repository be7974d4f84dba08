package domain

import "context"

// Schedulable is anything the scheduler scores: modules and flags.
type Schedulable interface {
	Name() string
	// PreconditionDNF is called once when the scheduler is built.
	PreconditionDNF() DNF
}

// Module is an attack or recon action. Execute writes its findings into buf;
// the core commits them after it returns. Errors that do not wrap
// ErrContractViolation are treated as recoverable module failures.
type Module interface {
	Schedulable
	Execute(ctx context.Context, buf *WriteBuffer, metaKey string, b Binding) error
}

// Flag is a goal. It is scored like a module but never executed.
type Flag interface {
	Schedulable
	Check(metaKey string, b Binding) bool
	Description() string
}
