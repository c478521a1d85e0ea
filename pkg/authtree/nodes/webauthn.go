package nodes

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/identity"
	"github.com/cedarauth/cedar/pkg/observability"
)

// WebAuthn node outcomes.
const (
	OutcomeSuccess           = "SUCCESS"
	OutcomeFailure           = "FAILURE"
	OutcomeExceedDeviceLimit = "EXCEED_DEVICE_LIMIT"
)

const (
	// AttrWebAuthnDevices stores the subject's device profiles, one JSON
	// document per value.
	AttrWebAuthnDevices = "webauthnDeviceProfiles"
	// KeyWebAuthnDeviceData is the transient-state key carrying the new
	// device credential as JSON.
	KeyWebAuthnDeviceData = "webauthnDeviceData"
	// KeyRecoveryCodes exposes freshly generated recovery codes to a later
	// display node. Transient so they never outlive the evaluation.
	KeyRecoveryCodes = "recoveryCodes"
)

const recoveryCodeCount = 10

// DeviceProfile is one registered WebAuthn credential.
type DeviceProfile struct {
	UUID          string   `json:"uuid"`
	Name          string   `json:"deviceName"`
	CredentialID  string   `json:"credentialId"`
	PublicKey     string   `json:"publicKey"`
	SignCount     uint32   `json:"signCount"`
	RecoveryCodes []string `json:"recoveryCodes,omitempty"`
}

// WebAuthnStorageConfig configures the device storage node.
type WebAuthnStorageConfig struct {
	// MaxSavedDevices caps the device profiles per subject. Zero means
	// unlimited.
	MaxSavedDevices int
	// GenerateRecoveryCodes attaches one-time recovery codes to the
	// stored profile.
	GenerateRecoveryCodes bool
}

// WebAuthnDeviceStorageNode persists a newly attested WebAuthn device
// credential against the subject's identity. The credential arrives as
// JSON in transient state; the node rebuilds it, enforces the device
// limit, optionally generates recovery codes, and saves.
type WebAuthnDeviceStorageNode struct {
	cfg    WebAuthnStorageConfig
	store  identity.Store
	logger *observability.Logger
}

// NewWebAuthnDeviceStorageNode creates a device storage node.
func NewWebAuthnDeviceStorageNode(cfg WebAuthnStorageConfig, store identity.Store, logger *observability.Logger) *WebAuthnDeviceStorageNode {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &WebAuthnDeviceStorageNode{cfg: cfg, store: store, logger: logger}
}

// Process stores the device. Malformed credentials and store failures
// resolve to the FAILURE outcome; a subject already at the device limit
// resolves to EXCEED_DEVICE_LIMIT without saving anything.
func (n *WebAuthnDeviceStorageNode) Process(ctx context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	raw := tc.TransientString(KeyWebAuthnDeviceData)
	if raw == "" {
		n.logger.Error("no device data in transient state")
		return authtree.GoTo(OutcomeFailure).Build()
	}

	var device DeviceProfile
	if err := json.Unmarshal([]byte(raw), &device); err != nil {
		n.logger.WithField("error", err.Error()).Error("malformed device data")
		return authtree.GoTo(OutcomeFailure).Build()
	}
	if device.CredentialID == "" || device.PublicKey == "" {
		n.logger.Error("device data missing credential ID or public key")
		return authtree.GoTo(OutcomeFailure).Build()
	}

	subject, err := resolveSubject(ctx, n.store, tc)
	if err != nil {
		return nil, authtree.NewProcessError(TypeWebAuthnDeviceStorage, err)
	}

	existing, err := n.store.GetAttribute(ctx, subject, AttrWebAuthnDevices)
	if err != nil {
		return nil, authtree.NewProcessError(TypeWebAuthnDeviceStorage, fmt.Errorf("read device profiles: %w", err))
	}
	if n.cfg.MaxSavedDevices > 0 && len(existing) >= n.cfg.MaxSavedDevices {
		n.logger.WithFields(map[string]interface{}{
			"subject": subject.UniversalID,
			"devices": len(existing),
			"limit":   n.cfg.MaxSavedDevices,
		}).Info("device limit reached")
		return authtree.GoTo(OutcomeExceedDeviceLimit).Build()
	}

	if device.UUID == "" {
		device.UUID = uuid.New().String()
	}

	var codes []string
	if n.cfg.GenerateRecoveryCodes {
		codes, err = generateRecoveryCodes(recoveryCodeCount)
		if err != nil {
			return nil, authtree.NewProcessError(TypeWebAuthnDeviceStorage, fmt.Errorf("generate recovery codes: %w", err))
		}
		device.RecoveryCodes = codes
	}

	encoded, err := json.Marshal(&device)
	if err != nil {
		return nil, authtree.NewProcessError(TypeWebAuthnDeviceStorage, fmt.Errorf("encode device profile: %w", err))
	}

	profiles := append(append([]string(nil), existing...), string(encoded))
	if err := n.store.SetAttribute(ctx, subject, AttrWebAuthnDevices, profiles); err != nil {
		n.logger.WithField("error", err.Error()).Error("store device profile")
		return authtree.GoTo(OutcomeFailure).Build()
	}
	if err := n.store.Save(ctx, subject); err != nil {
		n.logger.WithField("error", err.Error()).Error("persist device profile")
		return authtree.GoTo(OutcomeFailure).Build()
	}

	builder := authtree.GoTo(OutcomeSuccess)
	if len(codes) > 0 {
		transient := tc.CopyTransientState()
		transient[KeyRecoveryCodes] = codes
		builder.ReplaceTransientState(transient)
	}
	return builder.Build()
}

// Inputs implements authtree.Node.
func (n *WebAuthnDeviceStorageNode) Inputs() []string { return []string{KeyUsername} }

// Outcomes implements authtree.Node.
func (n *WebAuthnDeviceStorageNode) Outcomes() []string {
	return []string{OutcomeSuccess, OutcomeFailure, OutcomeExceedDeviceLimit}
}

const recoveryCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func generateRecoveryCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		buf := make([]byte, 12)
		for j := range buf {
			idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(recoveryCodeAlphabet))))
			if err != nil {
				return nil, err
			}
			buf[j] = recoveryCodeAlphabet[idx.Int64()]
		}
		codes[i] = string(buf)
	}
	return codes, nil
}
