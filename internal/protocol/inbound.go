// Package protocol defines the JSON frames exchanged over a room WebSocket.
package protocol

import (
	"encoding/json"
	"errors"
)

// Inbound discriminants carried in the "type" field.
const (
	TypePoll       = "poll"
	TypePollOption = "poll_option"
	TypeVote       = "vote"
	TypePollClose  = "poll_close"
	TypeElevate    = "elevate"
	TypeRecede     = "recede"
	TypeInstant    = "instant"
	TypeRaise      = "raise"
	TypeLower      = "lower"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object.
	ErrMalformed = errors.New("protocol: malformed frame")
	// ErrUnrecognized is returned when the type or object shape is not known.
	ErrUnrecognized = errors.New("protocol: unrecognized command")
	// ErrDeprecated is returned for the legacy flat frame format. It never yields a command.
	ErrDeprecated = errors.New("protocol: deprecated frame format")
)

// deprecatedTypes are discriminants of the legacy flat format.
var deprecatedTypes = map[string]bool{
	"raise":      true,
	"lower":      true,
	"instant":    true,
	"elevate":    true,
	"recede":     true,
	"poll":       true,
	"polloption": true,
	"vote":       true,
	"closepoll":  true,
}

// Command is one decoded client command.
type Command interface {
	Kind() string
}

// CreatePoll opens a poll titled PollTitle.
type CreatePoll struct{ PollTitle string }

// AddOption appends an option to an open poll.
type AddOption struct{ PollTitle, OptionTitle string }

// CastVote records the sender's choice in an open poll.
type CastVote struct{ PollTitle, OptionTitle string }

// ClosePoll closes an open poll.
type ClosePoll struct{ PollTitle string }

// Elevate raises the sender's level by Value.
type Elevate struct{ Value uint64 }

// Recede lowers the sender's level by Value.
type Recede struct{ Value uint64 }

// Signal is an ephemeral instant, raise or lower carrying an arbitrary payload.
type Signal struct {
	Type   string
	Object json.RawMessage
}

func (CreatePoll) Kind() string { return TypePoll }
func (AddOption) Kind() string  { return TypePollOption }
func (CastVote) Kind() string   { return TypeVote }
func (ClosePoll) Kind() string  { return TypePollClose }
func (Elevate) Kind() string    { return TypeElevate }
func (Recede) Kind() string     { return TypeRecede }
func (s Signal) Kind() string   { return s.Type }

type envelope struct {
	Type   string
	Object json.RawMessage
}

// Decode turns one text frame into a Command. Envelope keys match exactly.
func Decode(data []byte) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, ErrMalformed
	}
	var env envelope
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &env.Type); err != nil {
			return nil, ErrMalformed
		}
	}
	env.Object = fields["object"]
	if cmd := decodeObject(env); cmd != nil {
		return cmd, nil
	}
	if deprecatedTypes[env.Type] {
		return nil, ErrDeprecated
	}
	return nil, ErrUnrecognized
}

func decodeObject(env envelope) Command {
	if len(env.Object) == 0 {
		return nil
	}
	switch env.Type {
	case TypePoll, TypePollOption, TypeVote, TypePollClose:
		var fields map[string]string
		if err := json.Unmarshal(env.Object, &fields); err != nil || fields == nil {
			return nil
		}
		return pollCommand(env.Type, fields)
	case TypeElevate, TypeRecede:
		var n uint64
		if err := json.Unmarshal(env.Object, &n); err != nil {
			return nil
		}
		if env.Type == TypeElevate {
			return Elevate{Value: n}
		}
		return Recede{Value: n}
	case TypeInstant, TypeRaise, TypeLower:
		if !json.Valid(env.Object) {
			return nil
		}
		return Signal{Type: env.Type, Object: append(json.RawMessage(nil), env.Object...)}
	}
	return nil
}

func pollCommand(typ string, fields map[string]string) Command {
	title, ok := fields["poll_title"]
	if !ok {
		return nil
	}
	option, hasOption := fields["poll_option_title"]
	switch typ {
	case TypePoll:
		return CreatePoll{PollTitle: title}
	case TypePollClose:
		return ClosePoll{PollTitle: title}
	case TypePollOption:
		if hasOption {
			return AddOption{PollTitle: title, OptionTitle: option}
		}
	case TypeVote:
		if hasOption {
			return CastVote{PollTitle: title, OptionTitle: option}
		}
	}
	return nil
}
