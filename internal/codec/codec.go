// Package codec implements the wire format for event messages.
//
// Each message is one newline-terminated line of text: the event name,
// a comma, and the base64-encoded payload. Base64 never emits a comma,
// so the first comma on a line always ends the name field. Event names
// therefore must not contain commas or line breaks; payloads are
// arbitrary bytes.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Separator splits the event name from the encoded payload.
const Separator = ","

var (
	// ErrInvalidName is returned when an event name is empty or contains
	// a separator or line break.
	ErrInvalidName = errors.New("invalid event name")
	// ErrMissingSeparator is returned when a frame has no separator.
	ErrMissingSeparator = errors.New("frame has no separator")
	// ErrInvalidPayload is returned when a frame's payload segment is not
	// valid base64.
	ErrInvalidPayload = errors.New("invalid payload encoding")
)

// Message is one decoded frame: an event name and its raw payload.
type Message struct {
	Name    string
	Payload []byte
}

// Encode produces a single wire line for the given event name and payload.
// An empty payload encodes to "name,".
func Encode(name string, payload []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, Separator+"\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name + Separator + base64.StdEncoding.EncodeToString(payload), nil
}

// Decode parses one wire line into a Message. The name is everything up
// to the first separator; the remainder is base64-decoded as the payload.
func Decode(line string) (Message, error) {
	name, encoded, found := strings.Cut(line, Separator)
	if !found {
		return Message{}, fmt.Errorf("%w: %q", ErrMissingSeparator, line)
	}
	if name == "" {
		return Message{}, fmt.Errorf("%w: frame has empty name", ErrInvalidName)
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Message{}, fmt.Errorf("%w for event %q: %v", ErrInvalidPayload, name, err)
	}
	return Message{Name: name, Payload: payload}, nil
}
