package inspect

import "fmt"

// ConnectionError indicates the target (or dev database) could not be
// reached at all. Callers may retry; the inspector itself never does.
type ConnectionError struct {
	Dialect string
	Target  string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s target %s: %v", e.Dialect, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InspectionError indicates the target was reachable but its schema could
// not be read, e.g. missing privileges or an object the inspector does not
// understand.
type InspectionError struct {
	Dialect string
	Target  string
	Object  string
	Err     error
}

func (e *InspectionError) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("inspecting %s (%s) on %s: %v", e.Object, e.Dialect, e.Target, e.Err)
	}
	return fmt.Sprintf("inspecting %s target %s: %v", e.Dialect, e.Target, e.Err)
}

func (e *InspectionError) Unwrap() error { return e.Err }
