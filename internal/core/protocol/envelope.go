// Package protocol defines the wire types exchanged between endpoints and the
// broker.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Topic names a message kind on the wire.
type Topic string

// Endpoint to broker topics.
const (
	TopicOpen                 Topic = "open"
	TopicAddContextListener   Topic = "addContextListener"
	TopicAddIntentListener    Topic = "addIntentListener"
	TopicBroadcast            Topic = "broadcast"
	TopicRaiseIntent          Topic = "raiseIntent"
	TopicFindIntent           Topic = "findIntent"
	TopicFindIntentsByContext Topic = "findIntentsByContext"
	TopicJoinChannel          Topic = "joinChannel"
	TopicLeaveChannel         Topic = "leaveChannel"
	TopicResolverSelect       Topic = "resolver-select"
	TopicResolverClose        Topic = "resolver-close"
)

// Broker to endpoint topics.
const (
	TopicContext                    Topic = "context"
	TopicIntent                     Topic = "intent"
	TopicEnvironmentData            Topic = "environmentData"
	TopicReturnFindIntent           Topic = "returnFindIntent"
	TopicReturnFindIntentsByContext Topic = "returnFindIntentsByContext"
	TopicResolver                   Topic = "resolver"
	TopicResponse                   Topic = "response"
)

// Correlated reports whether requests on the topic expect a response keyed
// by the envelope ID.
func (t Topic) Correlated() bool {
	switch t {
	case TopicOpen, TopicRaiseIntent, TopicFindIntent, TopicFindIntentsByContext:
		return true
	}
	return false
}

// IsResponse reports whether the topic carries the answer to a correlated
// request.
func (t Topic) IsResponse() bool {
	switch t {
	case TopicResponse, TopicReturnFindIntent, TopicReturnFindIntentsByContext:
		return true
	}
	return false
}

// Envelope is the single message shape carried by every transport.
type Envelope struct {
	Topic Topic  `json:"topic"`
	ID    string `json:"id,omitempty"`

	Name        string  `json:"name,omitempty"`
	Intent      string  `json:"intent,omitempty"`
	Context     Context `json:"context,omitempty"`
	ContextType string  `json:"contextType,omitempty"`
	Channel     string  `json:"channel,omitempty"`

	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// WithData returns a copy of the envelope with v encoded into Data.
func (e Envelope) WithData(v any) (Envelope, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return e, fmt.Errorf("encode %s data: %w", e.Topic, err)
	}
	e.Data = raw
	return e, nil
}

// Decode unmarshals Data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return Errorf(CodeMalformedMessage, "%s: missing data", e.Topic)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return Errorf(CodeMalformedMessage, "%s: invalid data: %v", e.Topic, err)
	}
	return nil
}

// Validate checks that an endpoint-originated envelope carries the fields
// its topic requires. Failures are MalformedMessage errors.
func (e Envelope) Validate() error {
	if e.Topic == "" {
		return Errorf(CodeMalformedMessage, "missing topic")
	}

	if e.Topic.Correlated() && e.ID == "" {
		return Errorf(CodeMalformedMessage, "%s: missing id", e.Topic)
	}

	switch e.Topic {
	case TopicOpen:
		if e.Name == "" {
			return Errorf(CodeMalformedMessage, "open: missing name")
		}
	case TopicAddIntentListener, TopicFindIntent:
		if e.Intent == "" {
			return Errorf(CodeMalformedMessage, "%s: missing intent", e.Topic)
		}
	case TopicBroadcast, TopicFindIntentsByContext:
		if e.Context.Type() == "" {
			return Errorf(CodeMalformedMessage, "%s: missing context type", e.Topic)
		}
	case TopicRaiseIntent:
		if e.Intent == "" {
			return Errorf(CodeMalformedMessage, "raiseIntent: missing intent")
		}
		if e.Context.Type() == "" {
			return Errorf(CodeMalformedMessage, "raiseIntent: missing context type")
		}
	case TopicJoinChannel:
		if e.Channel == "" {
			return Errorf(CodeMalformedMessage, "joinChannel: missing channel")
		}
	case TopicResolverSelect:
		if e.ID == "" {
			return Errorf(CodeMalformedMessage, "resolver-select: missing id")
		}
		if len(e.Data) == 0 {
			return Errorf(CodeMalformedMessage, "resolver-select: missing selection")
		}
	case TopicResolverClose:
		if e.ID == "" {
			return Errorf(CodeMalformedMessage, "resolver-close: missing id")
		}
	case TopicAddContextListener, TopicLeaveChannel:
	default:
		return Errorf(CodeMalformedMessage, "unknown topic %q", e.Topic)
	}

	return nil
}
