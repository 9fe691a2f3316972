package session

import "fmt"

// LifecycleError is returned when the operating system refuses to detach
// the process. It is fatal to session start.
type LifecycleError struct {
	Op  string
	Err error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// DaemonEnv is set in the environment of the re-executed background child.
const DaemonEnv = "FUSENT_DAEMONIZED"
