package pipelet

import "strings"

// Error classification for a failed pipelet execution.
const (
	ErrTypeTimeout       = "Timeout"
	ErrTypeSyntax        = "SyntaxError"
	ErrTypeException     = "Exception"
	ErrTypeProtocol      = "ProtocolError"
	ErrTypeConfiguration = "ConfigurationError"
)

// Error is the typed error value returned to the workflow engine. It is a
// value, not a Go error: pipelet failures are data to be logged, never
// propagated as exceptions.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// classifyError derives an Error from the captured debug output of a failed
// execution. A syntax-error marker wins over the generic exception type; the
// message is the last non-empty debug line.
func classifyError(debug string) *Error {
	errType := ErrTypeException
	if strings.Contains(debug, "SyntaxError") {
		errType = ErrTypeSyntax
	}
	message := "Pipelet execution failed"
	lines := strings.Split(strings.TrimSpace(debug), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			message = line
			break
		}
	}
	return &Error{Type: errType, Message: message}
}
