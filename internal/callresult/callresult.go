// Package callresult implements the uniform Ok(bytes) | Err(message)
// envelope every variable-length host-binding return value uses
// (ol_config.get_config_value and the three ol_ipc calls). The host
// writes the serialized CallResult into a guest-allocated buffer whose
// offset is the binding's return value.
package callresult

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// CallResult is Ok(Bytes) | Err(String). Exactly one of Value/Message
// is meaningful, selected by Ok.
type CallResult struct {
	Ok      bool
	Value   []byte
	Message string
}

// Success builds an Ok(bytes) result.
func Success(value []byte) CallResult {
	return CallResult{Ok: true, Value: value}
}

// Failure builds an Err(message) result.
func Failure(message string) CallResult {
	return CallResult{Ok: false, Message: message}
}

// Failuref builds an Err(message) result with a formatted message.
func Failuref(format string, args ...interface{}) CallResult {
	return Failure(fmt.Sprintf(format, args...))
}

// Encode serializes the CallResult using the stable self-describing
// binary encoding the wire format leaves as an implementation choice.
func Encode(r CallResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("encoding call result: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a CallResult previously produced by Encode.
func Decode(data []byte) (CallResult, error) {
	var r CallResult
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return CallResult{}, fmt.Errorf("decoding call result: %w", err)
	}
	return r, nil
}
