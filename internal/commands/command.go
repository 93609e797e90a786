package commands

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeAdd       Type = "add"
	TypeComplete  Type = "complete"
	TypeRemove    Type = "remove"
	TypeList      Type = "list"
	TypeCompleted Type = "completed"
	TypeRecheck   Type = "recheck"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type AddArgs struct {
	OrderNumber string
	Section     string
}

// TargetArgs names a reminder by id, id prefix or order number.
type TargetArgs struct {
	Ref string
}

type Command struct {
	Type   Type
	Raw    string
	Add    *AddArgs
	Target *TargetArgs
}

var aliases = map[string]Type{
	"new":   TypeAdd,
	"done":  TypeComplete,
	"rm":    TypeRemove,
	"del":   TypeRemove,
	"ls":    TypeList,
	"hist":  TypeCompleted,
	"check": TypeRecheck,
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, ":") {
		raw = strings.TrimSpace(raw[1:])
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]
	if t, ok := aliases[head]; ok {
		head = string(t)
	}

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeComplete, TypeRemove:
		return parseTarget(input, Type(head), args)
	case TypeList, TypeCompleted, TypeRecheck:
		if len(args) > 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s takes no arguments", head)}
		}
		return Command{Type: Type(head), Raw: input}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseAdd(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires an order number and a section"}
	}
	order := strings.TrimPrefix(args[0], "#")
	if order == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires an order number"}
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &AddArgs{
		OrderNumber: order,
		Section:     strings.Join(args[1:], " "),
	}}, nil
}

func parseTarget(raw string, t Type, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires exactly one reminder id or order number", t)}
	}
	return Command{Type: t, Raw: raw, Target: &TargetArgs{Ref: strings.TrimPrefix(args[0], "#")}}, nil
}
