package policy

import (
	"fmt"

	"weftlabs/weft/pkg/command"
)

// Rejection is the verdict for a command that failed a policy rule. It is an
// expected outcome of evaluation, not a fault: the command is recorded as
// rejected and its identifier is remembered, but no fact mutation or effect
// survives.
type Rejection struct {
	Command command.ID
	Kind    command.Kind
	Reason  string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("policy rejected %s command %s: %s", r.Kind, r.Command, r.Reason)
}

// reject builds a Rejection for the command under evaluation.
func reject(cmd *command.Command, format string, args ...any) *Rejection {
	return &Rejection{
		Command: cmd.ID,
		Kind:    cmd.Fields.Kind(),
		Reason:  fmt.Sprintf(format, args...),
	}
}
