package authtree

import (
	"encoding/json"
	"fmt"
)

// Callback is one unit of interaction sent to the client when a node
// needs more input, and carried back with the client's answer on the next
// request.
type Callback interface {
	CallbackType() string
}

// Callback type discriminators used in the JSON envelope.
const (
	TypeNameCallback         = "NameCallback"
	TypePasswordCallback     = "PasswordCallback"
	TypeTextOutputCallback   = "TextOutputCallback"
	TypeRedirectCallback     = "RedirectCallback"
	TypePollingWaitCallback  = "PollingWaitCallback"
	TypeHiddenValueCallback  = "HiddenValueCallback"
	TypeConfirmationCallback = "ConfirmationCallback"
)

// Text output message severities.
const (
	MessageTypeInfo    = 0
	MessageTypeWarning = 1
	MessageTypeError   = 2
)

// NameCallback prompts for a textual value such as a username.
type NameCallback struct {
	Prompt string `json:"prompt"`
	Value  string `json:"value,omitempty"`
}

func (c *NameCallback) CallbackType() string { return TypeNameCallback }

// PasswordCallback prompts for a secret value.
type PasswordCallback struct {
	Prompt string `json:"prompt"`
	Value  string `json:"value,omitempty"`
}

func (c *PasswordCallback) CallbackType() string { return TypePasswordCallback }

// TextOutputCallback displays a message to the user.
type TextOutputCallback struct {
	MessageType int    `json:"messageType"`
	Message     string `json:"message"`
}

func (c *TextOutputCallback) CallbackType() string { return TypeTextOutputCallback }

// RedirectCallback sends the client to an external location, typically a
// social identity provider, and back.
type RedirectCallback struct {
	RedirectURL string `json:"redirectUrl"`
	Method      string `json:"method"`
	TrackingID  string `json:"trackingId,omitempty"`
}

func (c *RedirectCallback) CallbackType() string { return TypeRedirectCallback }

// PollingWaitCallback instructs the client to poll again after the given
// wait period. The server computes the backoff; the client owns the
// timing of the next poll.
type PollingWaitCallback struct {
	WaitTimeMillis int    `json:"waitTime"`
	Message        string `json:"message,omitempty"`
}

func (c *PollingWaitCallback) CallbackType() string { return TypePollingWaitCallback }

// HiddenValueCallback round-trips an opaque value through the client.
type HiddenValueCallback struct {
	ID    string `json:"id"`
	Value string `json:"value,omitempty"`
}

func (c *HiddenValueCallback) CallbackType() string { return TypeHiddenValueCallback }

// ConfirmationCallback asks the user to pick one of a fixed set of
// options.
type ConfirmationCallback struct {
	Options  []string `json:"options"`
	Selected int      `json:"selected"`
}

func (c *ConfirmationCallback) CallbackType() string { return TypeConfirmationCallback }

// callbackEnvelope is the JSON wire form: a type tag plus the callback's
// own fields.
type callbackEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalCallbacks encodes callbacks with their type tags.
func MarshalCallbacks(cbs []Callback) ([]byte, error) {
	envelopes := make([]callbackEnvelope, 0, len(cbs))
	for _, cb := range cbs {
		data, err := json.Marshal(cb)
		if err != nil {
			return nil, fmt.Errorf("marshal callback %s: %w", cb.CallbackType(), err)
		}
		envelopes = append(envelopes, callbackEnvelope{Type: cb.CallbackType(), Data: data})
	}
	return json.Marshal(envelopes)
}

// UnmarshalCallbacks decodes a callback list from its wire form.
func UnmarshalCallbacks(raw []byte) ([]Callback, error) {
	var envelopes []callbackEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		return nil, fmt.Errorf("unmarshal callbacks: %w", err)
	}

	cbs := make([]Callback, 0, len(envelopes))
	for _, env := range envelopes {
		var cb Callback
		switch env.Type {
		case TypeNameCallback:
			cb = &NameCallback{}
		case TypePasswordCallback:
			cb = &PasswordCallback{}
		case TypeTextOutputCallback:
			cb = &TextOutputCallback{}
		case TypeRedirectCallback:
			cb = &RedirectCallback{}
		case TypePollingWaitCallback:
			cb = &PollingWaitCallback{}
		case TypeHiddenValueCallback:
			cb = &HiddenValueCallback{}
		case TypeConfirmationCallback:
			cb = &ConfirmationCallback{}
		default:
			return nil, fmt.Errorf("unknown callback type %q", env.Type)
		}
		if err := json.Unmarshal(env.Data, cb); err != nil {
			return nil, fmt.Errorf("unmarshal callback %s: %w", env.Type, err)
		}
		cbs = append(cbs, cb)
	}
	return cbs, nil
}

// FindName returns the value of the first NameCallback answer, if any.
func FindName(cbs []Callback) (string, bool) {
	for _, cb := range cbs {
		if nc, ok := cb.(*NameCallback); ok {
			return nc.Value, true
		}
	}
	return "", false
}

// FindPassword returns the value of the first PasswordCallback answer.
func FindPassword(cbs []Callback) (string, bool) {
	for _, cb := range cbs {
		if pc, ok := cb.(*PasswordCallback); ok {
			return pc.Value, true
		}
	}
	return "", false
}

// FindHiddenValue returns the value of the HiddenValueCallback with the
// given ID.
func FindHiddenValue(cbs []Callback, id string) (string, bool) {
	for _, cb := range cbs {
		if hv, ok := cb.(*HiddenValueCallback); ok && hv.ID == id {
			return hv.Value, true
		}
	}
	return "", false
}
