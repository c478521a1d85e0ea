package push

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageState is the dispatcher's view of one push message.
type MessageState int

const (
	// StatusUnknown means the message ID is not registered.
	StatusUnknown MessageState = iota
	// StatusWaiting means the message was sent and no answer arrived yet.
	StatusWaiting
	// StatusApproved means the device approved the request.
	StatusApproved
	// StatusDenied means the device denied the request.
	StatusDenied
)

func (s MessageState) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusApproved:
		return "APPROVED"
	case StatusDenied:
		return "DENIED"
	default:
		return "UNKNOWN"
	}
}

// ErrUnknownMessage indicates an answer or check referenced a message ID
// the dispatcher is not expecting.
var ErrUnknownMessage = errors.New("unknown push message")

// Message is one push notification to a registered device.
type Message struct {
	ID        string
	Realm     string
	DeviceID  string
	Subject   string
	Body      string
	ExpiresAt time.Time
}

// NewMessage creates a message with a fresh ID.
func NewMessage(realm, deviceID, subject, body string, ttl time.Duration) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Realm:     realm,
		DeviceID:  deviceID,
		Subject:   subject,
		Body:      body,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
}

// Dispatcher correlates out-of-band device answers back to waiting login
// attempts. Send delivers the message, Expect registers interest in the
// answer, Check reads the current state, and Forget discards tracking
// state once the login attempt ends.
type Dispatcher interface {
	Send(ctx context.Context, msg *Message) error
	Expect(messageID string) error
	Check(ctx context.Context, messageID string) (MessageState, error)
	Forget(messageID string)
}

// Answerer is implemented by dispatchers that accept device answers,
// typically called from the HTTP endpoint the device posts to.
type Answerer interface {
	Answer(messageID string, approved bool) error
}

// Transport delivers a message to the device, e.g. via a vendor push
// gateway. Delivery failures surface as process errors on Send.
type Transport interface {
	Deliver(ctx context.Context, msg *Message) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, msg *Message) error

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// MemoryDispatcher tracks pending messages in process memory. Entries are
// independent; a plain mutex-guarded map is sufficient for concurrent
// polls across sessions.
type MemoryDispatcher struct {
	transport Transport

	mu      sync.RWMutex
	pending map[string]MessageState
}

// NewMemoryDispatcher creates a dispatcher delivering through transport.
// A nil transport drops messages, useful in tests.
func NewMemoryDispatcher(transport Transport) *MemoryDispatcher {
	return &MemoryDispatcher{transport: transport, pending: make(map[string]MessageState)}
}

// Send delivers the message to the device.
func (d *MemoryDispatcher) Send(ctx context.Context, msg *Message) error {
	if d.transport != nil {
		if err := d.transport.Deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Expect registers interest in the message's answer.
func (d *MemoryDispatcher) Expect(messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[messageID] = StatusWaiting
	return nil
}

// Check reads the message's current state.
func (d *MemoryDispatcher) Check(_ context.Context, messageID string) (MessageState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	state, ok := d.pending[messageID]
	if !ok {
		return StatusUnknown, nil
	}
	return state, nil
}

// Answer records the device's approval or denial.
func (d *MemoryDispatcher) Answer(messageID string, approved bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[messageID]; !ok {
		return ErrUnknownMessage
	}
	if approved {
		d.pending[messageID] = StatusApproved
	} else {
		d.pending[messageID] = StatusDenied
	}
	return nil
}

// Forget discards tracking state for the message.
func (d *MemoryDispatcher) Forget(messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, messageID)
}
