package replay

import "fmt"

// ReplayError points at the tape entry that could not be replayed. Step is
// -1 for problems with the tape header.
type ReplayError struct {
	Step    int    `json:"step"`
	Tick    uint64 `json:"tick"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *ReplayError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("replay error(step=%d tick=%d reason=%s): %s", e.Step, e.Tick, e.Reason, e.Message)
}

func headerError(reason, format string, args ...any) *ReplayError {
	return &ReplayError{Step: -1, Reason: reason, Message: fmt.Sprintf(format, args...)}
}
