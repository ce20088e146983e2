package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsbridge/control-service/internal/core/events"
)

// Inbound message types.
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessagePing        = "ping"
)

// Outbound message types.
const (
	MessageConnection   = "connection"
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
	MessageState        = "state"
	MessageEvent        = "event"
	MessagePong         = "pong"
	MessageError        = "error"
)

// Close codes sent when the broker ends a connection.
const (
	CloseInternalError = 4000
	CloseMissingToken  = 4001
	CloseInvalidToken  = 4002
	CloseInactivity    = 4003
)

// Inbound is a message received from a dashboard.
type Inbound struct {
	Type   string                 `json:"type"`
	Topic  string                 `json:"topic,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// TopicParams converts the raw params to string values.
func (m *Inbound) TopicParams() events.Params {
	if len(m.Params) == 0 {
		return events.Params{}
	}
	out := make(events.Params, len(m.Params))
	for k, v := range m.Params {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// Envelope is a message sent to a dashboard.
type Envelope struct {
	Type      string        `json:"type"`
	Status    string        `json:"status,omitempty"`
	ClientID  string        `json:"clientId,omitempty"`
	Topic     string        `json:"topic,omitempty"`
	Params    events.Params `json:"params,omitempty"`
	State     interface{}   `json:"state,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func connectedEnvelope(clientID string, now time.Time) *Envelope {
	return &Envelope{Type: MessageConnection, Status: "connected", ClientID: clientID, Timestamp: now}
}

func subscriptionEnvelope(kind, topic string, params events.Params, now time.Time) *Envelope {
	return &Envelope{Type: kind, Topic: topic, Params: params, Timestamp: now}
}

func stateEnvelope(topic string, params events.Params, state interface{}, now time.Time) *Envelope {
	return &Envelope{Type: MessageState, Topic: topic, Params: params, State: state, Timestamp: now}
}

func eventEnvelope(topic string, params events.Params, data interface{}, now time.Time) *Envelope {
	return &Envelope{Type: MessageEvent, Topic: topic, Params: params, Data: data, Timestamp: now}
}

func pongEnvelope(now time.Time) *Envelope {
	return &Envelope{Type: MessagePong, Timestamp: now}
}

func errorEnvelope(message string, now time.Time) *Envelope {
	return &Envelope{Type: MessageError, Message: message, Timestamp: now}
}

func encode(e *Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", e.Type, err)
	}
	return data, nil
}

// subscriptionKey identifies a (topic, params) pair.
func subscriptionKey(topic string, params events.Params) string {
	return topic + ":" + params.Key()
}
