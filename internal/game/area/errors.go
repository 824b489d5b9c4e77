package area

import (
	"errors"
	"fmt"
)

// Command failure classes. Both are reported to the caller verbatim.
var (
	// ErrInvalidParameters marks a malformed command or one the variant does not define.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrNotApplicable marks a well-formed command the area cannot act on right now.
	ErrNotApplicable = errors.New("not applicable")
)

// CommandError is a command failure whose message is safe to return to clients.
type CommandError struct {
	kind error
	msg  string
}

func (e *CommandError) Error() string { return e.msg }

// Is matches the failure class.
func (e *CommandError) Is(target error) bool { return target == e.kind }

// InvalidParameters returns a client-visible ErrInvalidParameters failure.
func InvalidParameters(format string, args ...any) error {
	return &CommandError{kind: ErrInvalidParameters, msg: fmt.Sprintf(format, args...)}
}

// NotApplicable returns a client-visible ErrNotApplicable failure.
func NotApplicable(format string, args ...any) error {
	return &CommandError{kind: ErrNotApplicable, msg: fmt.Sprintf(format, args...)}
}

// ClientMessage returns the message to put in a command response for err, and
// whether err was a tagged command failure. Untagged errors yield "".
func ClientMessage(err error) (string, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.msg, true
	}
	return "", false
}
