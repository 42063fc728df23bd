package cycle

import "github.com/hj91/node-nutrunner-open-library/internal/state"

// Error codes for interlock violations, stable across releases since
// callers match on them.
const (
	CodeNotConnected  = "NOT_CONNECTED"
	CodeLinkNotReady  = "LINK_NOT_READY"
	CodeToolDisabled  = "TOOL_DISABLED"
	CodeToolRunning   = "TOOL_RUNNING"
	CodeCtrlNotReady  = "CTRL_NOT_READY"
	CodeAlarmActive   = "ALARM_ACTIVE"
	CodeVinRequired   = "VIN_REQUIRED"
	CodeJobNotActive  = "JOB_NOT_ACTIVE"
)

// InterlockError is raised synchronously, before any bytes are sent,
// when a precondition for an operator command isn't met.
type InterlockError struct {
	Code    string
	Message string
}

func (e *InterlockError) Error() string { return e.Message }

// CheckGeneric enforces the two preconditions every command other than
// startTightening requires: a live, handshaked connection.
func CheckGeneric(s state.Snapshot) error {
	if !s.Connection.Connected {
		return &InterlockError{Code: CodeNotConnected, Message: "not connected to controller"}
	}
	if !s.Connection.LinkReady {
		return &InterlockError{Code: CodeLinkNotReady, Message: "link handshake not complete"}
	}
	return nil
}

// CheckStartTightening evaluates the full eight-rule precondition table
// for startTightening, in order, failing on the first violation.
func CheckStartTightening(s state.Snapshot) error {
	if !s.Connection.Connected {
		return &InterlockError{Code: CodeNotConnected, Message: "not connected to controller"}
	}
	if !s.Connection.LinkReady {
		return &InterlockError{Code: CodeLinkNotReady, Message: "link handshake not complete"}
	}
	if !s.Tool.Enabled {
		return &InterlockError{Code: CodeToolDisabled, Message: "tool is not enabled"}
	}
	if s.Tool.Running {
		return &InterlockError{Code: CodeToolRunning, Message: "tool is already running"}
	}
	if !s.Controller.Ready {
		return &InterlockError{Code: CodeCtrlNotReady, Message: "controller is not ready"}
	}
	if s.Controller.ErrorActive {
		return &InterlockError{Code: CodeAlarmActive, Message: "controller has an active alarm"}
	}
	if s.Product.VINRequired && !s.Product.VINValid {
		return &InterlockError{Code: CodeVinRequired, Message: "a valid VIN is required before starting"}
	}
	if !s.Job.Active {
		return &InterlockError{Code: CodeJobNotActive, Message: "no job is active"}
	}
	return nil
}
