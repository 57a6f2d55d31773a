package protocol

import "fmt"

// ValidationError reports a payload from the server that does not have the
// expected shape. Object names the payload kind ("Message", "Metadata",
// "Notification").
type ValidationError struct {
	Object string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Object + " failed to validate"
	}
	return fmt.Sprintf("%s failed to validate: %v", e.Object, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
