// Package command classifies free-form user text into the small vocabulary
// the dialogue engine branches on.
package command

import "context"

type Command string

const (
	Affirm Command = "affirm"
	Deny   Command = "deny"
	Start  Command = "start"
	Stop   Command = "stop"
	Reset  Command = "reset"
	None   Command = "none"
)

type Parser interface {
	Parse(ctx context.Context, text string) (Command, error)
}
