package connector

import "fmt"

// ConfigurationError reports a missing or invalid configuration value. It is fatal
// at startup and never retried.
type ConfigurationError struct {
	Key   string
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid value for %s: %v", e.Field, e.Err)
	}
	return "you must configure " + e.Field
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// BodyReadError reports a failure reading a received message's content.
type BodyReadError struct {
	MessageID string
	Err       error
}

func (e *BodyReadError) Error() string {
	return fmt.Sprintf("error reading body of message %s: %v", e.MessageID, e.Err)
}

func (e *BodyReadError) Unwrap() error { return e.Err }

// Stage names the step of a poll cycle that failed.
type Stage string

const (
	StageReceive  Stage = "receive"
	StageReadBody Stage = "read_body"
	StageSubmit   Stage = "submit"
	StageDelete   Stage = "delete"
)

// DeliveryError is returned by Controller.Process when a cycle terminates
// abnormally. Err holds the underlying transport, body-read or submit error.
type DeliveryError struct {
	MessageID string
	Stage     Stage
	Err       error
}

func (e *DeliveryError) Error() string {
	switch e.Stage {
	case StageReceive:
		return fmt.Sprintf("error receiving message from queue: %v", e.Err)
	case StageReadBody:
		return fmt.Sprintf("error reading message %s body from queue: %v", e.MessageID, e.Err)
	case StageSubmit:
		return fmt.Sprintf("error submitting message %s downstream: %v", e.MessageID, e.Err)
	case StageDelete:
		return fmt.Sprintf("error deleting processed message %s off the queue: %v", e.MessageID, e.Err)
	default:
		return fmt.Sprintf("delivery of message %s failed at %s: %v", e.MessageID, e.Stage, e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }
