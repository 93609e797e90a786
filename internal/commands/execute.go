package commands

import "fmt"

type Result struct {
	Message string
	Lines   []string
}

type Handlers struct {
	Add       func(AddArgs) (Result, error)
	Complete  func(TargetArgs) (Result, error)
	Remove    func(TargetArgs) (Result, error)
	List      func() (Result, error)
	Completed func() (Result, error)
	Recheck   func() (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeComplete:
		if handlers.Complete == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Complete(*cmd.Target)
	case TypeRemove:
		if handlers.Remove == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Remove(*cmd.Target)
	case TypeList:
		if handlers.List == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.List()
	case TypeCompleted:
		if handlers.Completed == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Completed()
	case TypeRecheck:
		if handlers.Recheck == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Recheck()
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
