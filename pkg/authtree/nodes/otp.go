package nodes

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/identity"
	"github.com/cedarauth/cedar/pkg/observability"
)

// Gateway delivers an out-of-band message to a recipient, e.g. an SMTP
// relay or an SMS aggregator.
type Gateway interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, recipient, subject, body string) error

// Send calls f.
func (f GatewayFunc) Send(ctx context.Context, recipient, subject, body string) error {
	return f(ctx, recipient, subject, body)
}

// OTPGeneratorNode generates a random numeric one-time password into
// transient state. Transient state keeps the code out of any persisted
// session snapshot.
type OTPGeneratorNode struct {
	length int
}

// NewOTPGeneratorNode creates a generator producing codes of the given
// digit length.
func NewOTPGeneratorNode(length int) *OTPGeneratorNode {
	if length <= 0 {
		length = 6
	}
	return &OTPGeneratorNode{length: length}
}

// Process generates the code and continues.
func (n *OTPGeneratorNode) Process(_ context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	code, err := randomDigits(n.length)
	if err != nil {
		return nil, authtree.NewProcessError(TypeOTPGenerator, fmt.Errorf("generate OTP: %w", err))
	}
	transient := tc.CopyTransientState()
	transient[KeyOneTimePassword] = code
	return authtree.GoTo(OutcomeDefault).ReplaceTransientState(transient).Build()
}

// Inputs implements authtree.Node.
func (n *OTPGeneratorNode) Inputs() []string { return nil }

// Outcomes implements authtree.Node.
func (n *OTPGeneratorNode) Outcomes() []string { return []string{OutcomeDefault} }

func randomDigits(length int) (string, error) {
	var sb strings.Builder
	for i := 0; i < length; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// OTPSenderConfig configures an OTP delivery node.
type OTPSenderConfig struct {
	Subject        string
	MessageContent string

	// SMS recipient resolution.
	PhoneAttribute   string
	CarrierAttribute string

	// Email recipient resolution.
	EmailAttribute string
}

// OTPSMSSenderNode delivers the generated OTP over SMS through an
// email-to-SMS carrier gateway. The recipient address is the subject's
// phone number joined with the carrier domain.
type OTPSMSSenderNode struct {
	cfg     OTPSenderConfig
	store   identity.Store
	gateway Gateway
	logger  *observability.Logger
}

// NewOTPSMSSenderNode creates an SMS sender node.
func NewOTPSMSSenderNode(cfg OTPSenderConfig, store identity.Store, gateway Gateway, logger *observability.Logger) *OTPSMSSenderNode {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &OTPSMSSenderNode{cfg: cfg, store: store, gateway: gateway, logger: logger}
}

// Process resolves the recipient, composes the message, and dispatches
// it. Gateway failures abort the evaluation.
func (n *OTPSMSSenderNode) Process(ctx context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	code := tc.TransientString(KeyOneTimePassword)
	if code == "" {
		return nil, authtree.NewProcessErrorf(TypeOTPSMSSender, "no one-time password in transient state")
	}

	subject, err := resolveSubject(ctx, n.store, tc)
	if err != nil {
		return nil, authtree.NewProcessError(TypeOTPSMSSender, err)
	}

	phone, err := firstAttribute(ctx, n.store, subject, n.cfg.PhoneAttribute)
	if err != nil {
		return nil, authtree.NewProcessError(TypeOTPSMSSender, err)
	}
	if phone == "" {
		return nil, authtree.NewProcessErrorf(TypeOTPSMSSender, "subject has no %s attribute", n.cfg.PhoneAttribute)
	}
	carrier, err := firstAttribute(ctx, n.store, subject, n.cfg.CarrierAttribute)
	if err != nil {
		return nil, authtree.NewProcessError(TypeOTPSMSSender, err)
	}

	recipient := smsRecipient(phone, carrier)
	body := fmt.Sprintf("%s %s", n.cfg.MessageContent, code)
	if err := n.gateway.Send(ctx, recipient, n.cfg.Subject, body); err != nil {
		return nil, authtree.NewProcessError(TypeOTPSMSSender, fmt.Errorf("dispatch SMS: %w", err))
	}

	n.logger.WithField("recipient", recipient).Info("one-time password sent over SMS")
	return authtree.GoTo(OutcomeDefault).Build()
}

// Inputs implements authtree.Node.
func (n *OTPSMSSenderNode) Inputs() []string { return []string{KeyUsername} }

// Outcomes implements authtree.Node.
func (n *OTPSMSSenderNode) Outcomes() []string { return []string{OutcomeDefault} }

// smsRecipient joins the phone number with the carrier gateway domain.
// A carrier value without an "@" gets one inserted; an empty carrier
// falls back to the bare phone number.
func smsRecipient(phone, carrier string) string {
	if carrier == "" {
		return phone
	}
	if strings.Contains(carrier, "@") {
		return phone + carrier
	}
	return phone + "@" + carrier
}

// OTPEmailSenderNode delivers the generated OTP to the subject's mail
// attribute through an SMTP gateway.
type OTPEmailSenderNode struct {
	cfg     OTPSenderConfig
	store   identity.Store
	gateway Gateway
	logger  *observability.Logger
}

// NewOTPEmailSenderNode creates an email sender node.
func NewOTPEmailSenderNode(cfg OTPSenderConfig, store identity.Store, gateway Gateway, logger *observability.Logger) *OTPEmailSenderNode {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &OTPEmailSenderNode{cfg: cfg, store: store, gateway: gateway, logger: logger}
}

// Process resolves the mail attribute and dispatches the code.
func (n *OTPEmailSenderNode) Process(ctx context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	code := tc.TransientString(KeyOneTimePassword)
	if code == "" {
		return nil, authtree.NewProcessErrorf(TypeOTPEmailSender, "no one-time password in transient state")
	}

	subject, err := resolveSubject(ctx, n.store, tc)
	if err != nil {
		return nil, authtree.NewProcessError(TypeOTPEmailSender, err)
	}

	email, err := firstAttribute(ctx, n.store, subject, n.cfg.EmailAttribute)
	if err != nil {
		return nil, authtree.NewProcessError(TypeOTPEmailSender, err)
	}
	if email == "" {
		return nil, authtree.NewProcessErrorf(TypeOTPEmailSender, "subject has no %s attribute", n.cfg.EmailAttribute)
	}

	body := fmt.Sprintf("%s %s", n.cfg.MessageContent, code)
	if err := n.gateway.Send(ctx, email, n.cfg.Subject, body); err != nil {
		return nil, authtree.NewProcessError(TypeOTPEmailSender, fmt.Errorf("dispatch mail: %w", err))
	}

	n.logger.WithField("recipient", email).Info("one-time password sent over mail")
	return authtree.GoTo(OutcomeDefault).Build()
}

// Inputs implements authtree.Node.
func (n *OTPEmailSenderNode) Inputs() []string { return []string{KeyUsername} }

// Outcomes implements authtree.Node.
func (n *OTPEmailSenderNode) Outcomes() []string { return []string{OutcomeDefault} }

// resolveSubject finds the identity named by the username in shared
// state.
func resolveSubject(ctx context.Context, store identity.Store, tc *authtree.TreeContext) (*identity.Identity, error) {
	username := tc.SharedString(KeyUsername)
	if username == "" {
		return nil, fmt.Errorf("no %s in shared state", KeyUsername)
	}
	subject, err := store.LookupByName(ctx, username, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve subject %q: %w", username, err)
	}
	return subject, nil
}

// firstAttribute returns the first value of an identity attribute, or ""
// when absent.
func firstAttribute(ctx context.Context, store identity.Store, id *identity.Identity, name string) (string, error) {
	values, err := store.GetAttribute(ctx, id, name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}
