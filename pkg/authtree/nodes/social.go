package nodes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/identity"
	"github.com/cedarauth/cedar/pkg/observability"
	"github.com/cedarauth/cedar/pkg/script"
)

// Social provider node outcomes.
const (
	OutcomeAccountExists = "ACCOUNT_EXISTS"
	OutcomeNoAccount     = "NO_ACCOUNT"
)

// keyOAuthState carries the anti-CSRF state across the provider redirect.
const keyOAuthState = "oauthState"

// ProviderConfig describes one OIDC social provider.
type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// exchanger is the provider round trip behind the social node: building
// the authorization URL and exchanging the returned code for verified
// profile claims.
type exchanger interface {
	AuthCodeURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, code string) (map[string]interface{}, error)
}

// oidcExchanger implements exchanger over OIDC discovery. The provider
// metadata is fetched once, on first use.
type oidcExchanger struct {
	cfg *ProviderConfig

	mu        sync.Mutex
	oauth2Cfg *oauth2.Config
	verifier  *oidc.IDTokenVerifier
	provider  *oidc.Provider
}

func (e *oidcExchanger) init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.provider != nil {
		return nil
	}

	provider, err := oidc.NewProvider(ctx, e.cfg.IssuerURL)
	if err != nil {
		return fmt.Errorf("discover OIDC provider: %w", err)
	}
	e.provider = provider
	e.verifier = provider.Verifier(&oidc.Config{ClientID: e.cfg.ClientID})
	e.oauth2Cfg = &oauth2.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  e.cfg.RedirectURL,
		Scopes:       e.cfg.Scopes,
	}
	return nil
}

func (e *oidcExchanger) AuthCodeURL(ctx context.Context, state string) (string, error) {
	if err := e.init(ctx); err != nil {
		return "", err
	}
	return e.oauth2Cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (e *oidcExchanger) Exchange(ctx context.Context, code string) (map[string]interface{}, error) {
	if err := e.init(ctx); err != nil {
		return nil, err
	}

	token, err := e.oauth2Cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}
	idToken, err := e.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse ID token claims: %w", err)
	}

	// Userinfo claims fill in whatever the ID token left out.
	if userInfo, err := e.provider.UserInfo(ctx, oauth2.StaticTokenSource(token)); err == nil {
		var extra map[string]interface{}
		if err := userInfo.Claims(&extra); err == nil {
			for k, v := range extra {
				if _, exists := claims[k]; !exists {
					claims[k] = v
				}
			}
		}
	}
	return claims, nil
}

// SocialConfig configures a social provider handler node.
type SocialConfig struct {
	// RawTransform maps the provider's raw claims to a normalized profile;
	// NormalizeTransform maps the normalized profile to local identity
	// attributes. Both scripts must return an object.
	RawTransform       string
	NormalizeTransform string
	ScriptLanguage     string

	// AliasAttributes lists identity attributes matched against the
	// transformed username during account reconciliation.
	AliasAttributes []string
}

// SocialProviderHandlerNode runs the return leg of a social login: it
// redirects to the selected provider when no authorization code is
// present, and on return exchanges the code, transforms the profile,
// and reconciles it against existing accounts.
type SocialProviderHandlerNode struct {
	cfg        SocialConfig
	exchangers map[string]exchanger
	store      identity.Store
	engine     script.Engine
	logger     *observability.Logger
}

// NewSocialProviderHandlerNode creates a handler for the given provider
// set.
func NewSocialProviderHandlerNode(cfg SocialConfig, providers map[string]*ProviderConfig, store identity.Store, engine script.Engine, logger *observability.Logger) (*SocialProviderHandlerNode, error) {
	if cfg.RawTransform == "" || cfg.NormalizeTransform == "" {
		return nil, fmt.Errorf("social provider handler requires both transform scripts")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	exchangers := make(map[string]exchanger, len(providers))
	for name, pc := range providers {
		exchangers[name] = &oidcExchanger{cfg: pc}
	}
	return &SocialProviderHandlerNode{
		cfg:        cfg,
		exchangers: exchangers,
		store:      store,
		engine:     engine,
		logger:     logger,
	}, nil
}

// Process drives the redirect round trip. A code arriving without its
// state parameter is rejected outright: accepting it would let an
// attacker splice their own authorization code into a victim's session.
func (n *SocialProviderHandlerNode) Process(ctx context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	idp := tc.SharedString(KeySelectedIDP)
	if idp == "" {
		return nil, authtree.NewProcessErrorf(TypeSocialProviderHandler, "missing %s in shared state", KeySelectedIDP)
	}
	ex, ok := n.exchangers[idp]
	if !ok {
		return nil, authtree.NewProcessErrorf(TypeSocialProviderHandler, "unknown social provider %q", idp)
	}

	code := firstParameter(tc.Request, "code")
	state := firstParameter(tc.Request, "state")

	if code == "" {
		return n.redirect(ctx, tc, ex)
	}
	if state == "" {
		return nil, authtree.NewProcessErrorf(TypeSocialProviderHandler, "authorization code arrived without a state parameter")
	}
	if expected := tc.SharedString(keyOAuthState); state != expected {
		return nil, authtree.NewProcessErrorf(TypeSocialProviderHandler, "state parameter does not match this session")
	}

	claims, err := ex.Exchange(ctx, code)
	if err != nil {
		return nil, authtree.NewProcessError(TypeSocialProviderHandler, err)
	}

	attrs, err := n.transformProfile(ctx, claims)
	if err != nil {
		return nil, err
	}
	username, _ := attrs[KeyUsername].(string)
	if username == "" {
		return nil, authtree.NewProcessErrorf(TypeSocialProviderHandler, "profile transform produced no username")
	}

	shared := tc.CopySharedState()
	delete(shared, keyOAuthState)
	shared[KeyUsername] = username

	subject, err := n.store.LookupByName(ctx, username, n.cfg.AliasAttributes)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return authtree.GoTo(OutcomeNoAccount).ReplaceSharedState(shared).Build()
		}
		return nil, authtree.NewProcessError(TypeSocialProviderHandler, fmt.Errorf("reconcile account: %w", err))
	}
	if tc.UniversalID != "" && tc.UniversalID != subject.UniversalID {
		return nil, authtree.NewProcessErrorf(TypeSocialProviderHandler,
			"matched account %s does not belong to the authenticated subject", subject.UniversalID)
	}

	n.logger.WithFields(map[string]interface{}{
		"provider": idp,
		"subject":  subject.UniversalID,
	}).Info("social account reconciled")
	return authtree.GoTo(OutcomeAccountExists).
		ReplaceSharedState(shared).
		WithUniversalID(subject.UniversalID).
		Build()
}

func (n *SocialProviderHandlerNode) redirect(ctx context.Context, tc *authtree.TreeContext, ex exchanger) (*authtree.Action, error) {
	state := uuid.New().String()
	authURL, err := ex.AuthCodeURL(ctx, state)
	if err != nil {
		return nil, authtree.NewProcessError(TypeSocialProviderHandler, err)
	}
	shared := tc.CopySharedState()
	shared[keyOAuthState] = state
	return authtree.Send(&authtree.RedirectCallback{
		RedirectURL: authURL,
		Method:      "GET",
		TrackingID:  state,
	}).ReplaceSharedState(shared).Build()
}

// transformProfile runs the two transform scripts in sequence: raw
// claims to normalized profile, normalized profile to local attributes.
func (n *SocialProviderHandlerNode) transformProfile(ctx context.Context, claims map[string]interface{}) (map[string]interface{}, error) {
	if n.engine == nil {
		return nil, authtree.NewProcessErrorf(TypeSocialProviderHandler, "no script engine configured")
	}

	normalized, err := n.runTransform(ctx, n.cfg.RawTransform, script.Bindings{"rawProfile": claims})
	if err != nil {
		return nil, authtree.NewProcessError(TypeSocialProviderHandler, fmt.Errorf("raw profile transform: %w", err))
	}
	attrs, err := n.runTransform(ctx, n.cfg.NormalizeTransform, script.Bindings{"normalizedProfile": normalized})
	if err != nil {
		return nil, authtree.NewProcessError(TypeSocialProviderHandler, fmt.Errorf("attribute transform: %w", err))
	}
	return attrs, nil
}

func (n *SocialProviderHandlerNode) runTransform(ctx context.Context, source string, bindings script.Bindings) (map[string]interface{}, error) {
	result, err := n.engine.Evaluate(ctx, source, n.cfg.ScriptLanguage, bindings)
	if err != nil {
		return nil, err
	}
	obj, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("transform returned %T, want object", result)
	}
	return obj, nil
}

// Inputs implements authtree.Node.
func (n *SocialProviderHandlerNode) Inputs() []string { return []string{KeySelectedIDP} }

// Outcomes implements authtree.Node.
func (n *SocialProviderHandlerNode) Outcomes() []string {
	return []string{OutcomeAccountExists, OutcomeNoAccount}
}

// firstParameter returns the first value of a request query parameter.
func firstParameter(req *authtree.Request, name string) string {
	if req == nil {
		return ""
	}
	if values := req.Parameters[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}
