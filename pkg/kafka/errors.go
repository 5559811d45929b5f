package kafka

import (
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")

	ErrEmptyKey = errors.New("message key cannot be empty")

	ErrEmptyValue = errors.New("message value cannot be empty")
)

type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeTransient covers broker/network failures that may succeed later.
	ErrorTypeTransient

	// ErrorTypePermanent covers malformed messages that will never succeed.
	ErrorTypePermanent
)

// KafkaError wraps errors with additional context
type KafkaError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *KafkaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *KafkaError) Unwrap() error {
	return e.Err
}

func NewTransientError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypeTransient, Message: message, Err: err}
}

func NewPermanentError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypePermanent, Message: message, Err: err}
}

// ClassifyError reports whether err is worth retrying. Broker error codes are
// classified by kafka-go; a batch is permanent only if every message failed
// permanently.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var kafkaErr *KafkaError
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Type
	}
	if errors.Is(err, ErrEmptyKey) || errors.Is(err, ErrEmptyValue) || errors.Is(err, ErrProducerClosed) {
		return ErrorTypePermanent
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		return classifyBatch(writeErrs)
	}

	var brokerErr kafka.Error
	if errors.As(err, &brokerErr) {
		if brokerErr.Temporary() || brokerErr.Timeout() {
			return ErrorTypeTransient
		}
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}

func classifyBatch(errs kafka.WriteErrors) ErrorType {
	result := ErrorTypeUnknown
	for _, err := range errs {
		if err == nil {
			continue
		}
		if ClassifyError(err) == ErrorTypeTransient {
			return ErrorTypeTransient
		}
		result = ErrorTypePermanent
	}
	return result
}
