package tools

import "errors"

// Sentinel errors for tool registration and execution.
var (
	// ErrToolNotFound indicates a requested tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolAlreadyRegistered indicates a duplicate registration attempt.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrToolNameEmpty indicates a tool was defined without a name.
	ErrToolNameEmpty = errors.New("tool name is empty")

	// ErrToolExecuteNil indicates a tool was defined without an execute function.
	ErrToolExecuteNil = errors.New("tool execute function is nil")

	// ErrMissingRequiredArg indicates a required argument was not provided.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType indicates an argument had the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)
