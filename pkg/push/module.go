package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cedarauth/cedar/pkg/identity"
	"github.com/cedarauth/cedar/pkg/observability"
)

// Attribute names on the identity record.
const (
	// AttrDeviceID names the registered push device.
	AttrDeviceID = "push-device-id"
	// AttrRecoveryCodes holds the remaining one-time emergency codes.
	AttrRecoveryCodes = "push-recovery-codes"
)

var (
	// ErrTimeout means the device did not answer before the deadline.
	ErrTimeout = errors.New("push authentication timed out")
	// ErrSpammed means the client polled faster than the allowed rate.
	ErrSpammed = errors.New("push poll rate exceeded")
	// ErrDenied means the device denied the request.
	ErrDenied = errors.New("push authentication denied")
	// ErrNoDevice means the subject has no registered push device.
	ErrNoDevice = errors.New("no push device registered")
	// ErrBadEmergencyCode means the submitted recovery code is not in the
	// stored set.
	ErrBadEmergencyCode = errors.New("invalid emergency code")
	// ErrBadTransition means a module method was called in the wrong state.
	ErrBadTransition = errors.New("invalid push module state transition")
)

// UsernamePrompt asks for the subject's username.
type UsernamePrompt struct {
	Prompt string
}

// WaitPrompt tells the client to poll again after the advised backoff.
type WaitPrompt struct {
	Message     string
	RetryMillis int
}

// EmergencyPrompt asks for a one-time recovery code.
type EmergencyPrompt struct {
	Prompt string
}

// Step is the module's answer to one client interaction: the new state
// plus the prompt bundle for that state. Exactly one prompt field is set
// for non-terminal states.
type Step struct {
	State     State
	Username  *UsernamePrompt
	Wait      *WaitPrompt
	Emergency *EmergencyPrompt

	// Identity is set on terminal success.
	Identity *identity.Identity
}

// ModuleConfig configures a push login module instance.
type ModuleConfig struct {
	Realm   string
	Subject string
	Body    string
	// Timeout bounds how long the device may take to answer.
	Timeout time.Duration
}

// Module is one push login attempt, driven as an explicit state machine:
// START → USERNAME → WAIT → {COMPLETE, EMERGENCY → EMERGENCY_USED,
// FAILED}. One Module serves one attempt and is not shared across
// sessions.
type Module struct {
	cfg        ModuleConfig
	store      identity.Store
	dispatcher Dispatcher
	advisor    *Advisor
	logger     *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	state     State
	subject   *identity.Identity
	messageID string
	deadline  time.Time
}

// NewModule creates a module in the START state.
func NewModule(cfg ModuleConfig, store identity.Store, dispatcher Dispatcher, advisor *Advisor, logger *observability.Logger, metrics *observability.Metrics) *Module {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Module{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		advisor:    advisor,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		state:      StateStart,
	}
}

// State returns the module's current state.
func (m *Module) State() State { return m.state }

func (m *Module) transition(to State) error {
	if !canTransition(m.state, to) && !(to == m.state) {
		return fmt.Errorf("%w: %v -> %v", ErrBadTransition, m.state, to)
	}
	m.state = to
	return nil
}

// Start moves to the USERNAME state, prompting for the subject.
func (m *Module) Start() (*Step, error) {
	if err := m.transition(StateUsername); err != nil {
		return nil, err
	}
	return &Step{State: m.state, Username: &UsernamePrompt{Prompt: "User Name"}}, nil
}

// SubmitUsername resolves the subject, dispatches the push message, and
// moves to the WAIT state.
func (m *Module) SubmitUsername(ctx context.Context, username string) (*Step, error) {
	if m.state != StateUsername {
		return nil, fmt.Errorf("%w: submit username in %v", ErrBadTransition, m.state)
	}

	subject, err := m.store.LookupByName(ctx, username, nil)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("resolve subject: %w", err)
	}
	devices, err := m.store.GetAttribute(ctx, subject, AttrDeviceID)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("read device registration: %w", err)
	}
	if len(devices) == 0 {
		m.state = StateFailed
		return nil, ErrNoDevice
	}

	msg := NewMessage(m.cfg.Realm, devices[0], m.cfg.Subject, m.cfg.Body, m.cfg.Timeout)
	if err := m.dispatcher.Send(ctx, msg); err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("dispatch push message: %w", err)
	}
	if err := m.dispatcher.Expect(msg.ID); err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("register push expectation: %w", err)
	}

	m.subject = subject
	m.messageID = msg.ID
	m.deadline = m.now().Add(m.cfg.Timeout)
	if err := m.transition(StateWait); err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"realm":      m.cfg.Realm,
		"message_id": msg.ID,
	}).Info("push message dispatched")

	return &Step{State: m.state, Wait: &WaitPrompt{
		Message:     "Approve the sign-in request on your device",
		RetryMillis: backoffMillis(1),
	}}, nil
}

// Poll re-enters the WAIT state, consulting the advisor. WAITING and
// TOO_EARLY re-arm the wait prompt; TIMEOUT and SPAMMED are fatal;
// COMPLETE resolves to success or denial.
func (m *Module) Poll(ctx context.Context) (*Step, error) {
	if m.state != StateWait {
		return nil, fmt.Errorf("%w: poll in %v", ErrBadTransition, m.state)
	}

	advice, err := m.advisor.Advise(ctx, m.messageID, m.deadline, m.now())
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.PushPollsTotal.WithLabelValues(advice.State.String()).Inc()
	}

	switch advice.State {
	case TooEarly, Waiting:
		return &Step{State: StateWait, Wait: &WaitPrompt{
			Message:     "Approve the sign-in request on your device",
			RetryMillis: advice.RetryMillis,
		}}, nil

	case Timeout:
		m.dispatcher.Forget(m.messageID)
		m.state = StateFailed
		return nil, ErrTimeout

	case Spammed:
		m.dispatcher.Forget(m.messageID)
		m.state = StateFailed
		m.logger.WithField("message_id", m.messageID).Error("push poll rate exceeded")
		return nil, ErrSpammed

	case Complete:
		m.dispatcher.Forget(m.messageID)
		if !advice.Approved {
			m.state = StateFailed
			return nil, ErrDenied
		}
		if err := m.transition(StateComplete); err != nil {
			return nil, err
		}
		return &Step{State: m.state, Identity: m.subject}, nil

	default:
		return nil, fmt.Errorf("unexpected wait state %v", advice.State)
	}
}

// RequestEmergency switches a waiting attempt to the emergency-code path.
func (m *Module) RequestEmergency() (*Step, error) {
	if err := m.transition(StateEmergency); err != nil {
		return nil, err
	}
	m.dispatcher.Forget(m.messageID)
	return &Step{State: m.state, Emergency: &EmergencyPrompt{Prompt: "Emergency Code"}}, nil
}

// SubmitEmergencyCode consumes one of the subject's one-time recovery
// codes. The code's removal and the device-profile save are one
// operation: a failed save leaves the code unconsumed.
func (m *Module) SubmitEmergencyCode(ctx context.Context, code string) (*Step, error) {
	if m.state != StateEmergency {
		return nil, fmt.Errorf("%w: emergency code in %v", ErrBadTransition, m.state)
	}

	codes, err := m.store.GetAttribute(ctx, m.subject, AttrRecoveryCodes)
	if err != nil {
		return nil, fmt.Errorf("read recovery codes: %w", err)
	}

	remaining := make([]string, 0, len(codes))
	found := false
	for _, c := range codes {
		if !found && c == code {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	if !found {
		return nil, ErrBadEmergencyCode
	}

	if err := m.store.SetAttribute(ctx, m.subject, AttrRecoveryCodes, remaining); err != nil {
		return nil, fmt.Errorf("consume recovery code: %w", err)
	}
	if err := m.store.Save(ctx, m.subject); err != nil {
		return nil, fmt.Errorf("persist recovery codes: %w", err)
	}

	if err := m.transition(StateEmergencyUsed); err != nil {
		return nil, err
	}
	m.logger.WithField("remaining_codes", len(remaining)).Info("emergency code consumed")
	return &Step{State: m.state, Identity: m.subject}, nil
}
