package nodes

import (
	"fmt"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/identity"
	"github.com/cedarauth/cedar/pkg/observability"
	"github.com/cedarauth/cedar/pkg/script"
)

// Registered node type names.
const (
	TypeUsernameCollector     = "UsernameCollector"
	TypeTimerStart            = "TimerStart"
	TypeTimerStop             = "TimerStop"
	TypeScriptedDecision      = "ScriptedDecision"
	TypeSocialProviderHandler = "SocialProviderHandler"
	TypeOTPGenerator          = "OTPGenerator"
	TypeOTPSMSSender          = "OTPSMSSender"
	TypeOTPEmailSender        = "OTPEmailSender"
	TypeWebAuthnDeviceStorage = "WebAuthnDeviceStorage"
	TypeModifyAuthLevel       = "ModifyAuthLevel"
)

// Well-known state keys shared across node types.
const (
	// KeyUsername carries the collected or reconciled username.
	KeyUsername = "username"
	// KeySelectedIDP names the social provider chosen earlier in the tree.
	KeySelectedIDP = "SELECTED_IDP"
	// KeyAuthLevel accumulates the authentication level.
	KeyAuthLevel = "authLevel"
	// KeyOneTimePassword holds the generated OTP in transient state.
	KeyOneTimePassword = "oneTimePassword"
)

// OutcomeDefault is the single outcome of nodes that always succeed.
const OutcomeDefault = "outcome"

// Deps bundles the collaborators node factories close over.
type Deps struct {
	Store        identity.Store
	Engine       script.Engine
	SMSGateway   Gateway
	EmailGateway Gateway
	Providers    map[string]*ProviderConfig
	Realm        string
	Logger       *observability.Logger
}

// RegisterAll registers every built-in node type against the registry.
func RegisterAll(reg *authtree.Registry, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}

	reg.Register(TypeUsernameCollector, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewUsernameCollectorNode(stringOption(cfg, "prompt", "User Name")), nil
	})
	reg.Register(TypeTimerStart, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewTimerStartNode(stringOption(cfg, "startTimeKey", "timerStart")), nil
	})
	reg.Register(TypeTimerStop, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewTimerStopNode(
			stringOption(cfg, "startTimeKey", "timerStart"),
			stringOption(cfg, "elapsedTimeKey", "timerElapsed"),
		), nil
	})
	reg.Register(TypeScriptedDecision, func(cfg map[string]interface{}) (authtree.Node, error) {
		source := stringOption(cfg, "script", "")
		if source == "" {
			return nil, fmt.Errorf("scripted decision requires a script")
		}
		outcomes := stringsOption(cfg, "outcomes")
		if len(outcomes) == 0 {
			return nil, fmt.Errorf("scripted decision requires at least one outcome")
		}
		return NewScriptedDecisionNode(ScriptedDecisionConfig{
			Source:   source,
			Language: stringOption(cfg, "language", "javascript"),
			Outcomes: outcomes,
			Realm:    deps.Realm,
		}, deps.Engine, deps.Logger), nil
	})
	reg.Register(TypeSocialProviderHandler, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewSocialProviderHandlerNode(SocialConfig{
			RawTransform:       stringOption(cfg, "rawProfileTransform", ""),
			NormalizeTransform: stringOption(cfg, "normalizedProfileTransform", ""),
			ScriptLanguage:     stringOption(cfg, "language", "javascript"),
			AliasAttributes:    stringsOption(cfg, "aliasAttributes"),
		}, deps.Providers, deps.Store, deps.Engine, deps.Logger)
	})
	reg.Register(TypeOTPGenerator, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewOTPGeneratorNode(intOption(cfg, "length", 6)), nil
	})
	reg.Register(TypeOTPSMSSender, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewOTPSMSSenderNode(OTPSenderConfig{
			Subject:          stringOption(cfg, "messageSubject", "One-time password"),
			MessageContent:   stringOption(cfg, "messageContent", "Your one-time password:"),
			PhoneAttribute:   stringOption(cfg, "phoneAttribute", "telephoneNumber"),
			CarrierAttribute: stringOption(cfg, "carrierAttribute", "mobileCarrier"),
		}, deps.Store, deps.SMSGateway, deps.Logger), nil
	})
	reg.Register(TypeOTPEmailSender, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewOTPEmailSenderNode(OTPSenderConfig{
			Subject:        stringOption(cfg, "messageSubject", "One-time password"),
			MessageContent: stringOption(cfg, "messageContent", "Your one-time password:"),
			EmailAttribute: stringOption(cfg, "emailAttribute", "mail"),
		}, deps.Store, deps.EmailGateway, deps.Logger), nil
	})
	reg.Register(TypeWebAuthnDeviceStorage, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewWebAuthnDeviceStorageNode(WebAuthnStorageConfig{
			MaxSavedDevices:       intOption(cfg, "maxSavedDevices", 0),
			GenerateRecoveryCodes: boolOption(cfg, "generateRecoveryCodes", false),
		}, deps.Store, deps.Logger), nil
	})
	reg.Register(TypeModifyAuthLevel, func(cfg map[string]interface{}) (authtree.Node, error) {
		return NewModifyAuthLevelNode(intOption(cfg, "authLevelIncrement", 0)), nil
	})
}

// stringOption reads a string config value with a default.
func stringOption(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// intOption reads an integer config value, tolerating the numeric types
// YAML and JSON decoders produce.
func intOption(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// boolOption reads a boolean config value with a default.
func boolOption(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

// stringsOption reads a string-list config value.
func stringsOption(cfg map[string]interface{}, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
