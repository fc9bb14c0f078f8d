package plan

import "fmt"

// PlanningError indicates the change set cannot be realized as valid
// statements on the target dialect.
type PlanningError struct {
	Dialect string
	Change  string
	Err     error
}

func (e *PlanningError) Error() string {
	if e.Change != "" {
		return fmt.Sprintf("planning %s for %s: %v", e.Change, e.Dialect, e.Err)
	}
	return fmt.Sprintf("planning for %s: %v", e.Dialect, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// UnsupportedChangeError indicates a change the target dialect cannot
// express, e.g. a constraint cycle that cannot be broken by deferring
// constraint creation.
type UnsupportedChangeError struct {
	Dialect string
	Change  string
	Reason  string
}

func (e *UnsupportedChangeError) Error() string {
	return fmt.Sprintf("unsupported change %s on %s: %s", e.Change, e.Dialect, e.Reason)
}
