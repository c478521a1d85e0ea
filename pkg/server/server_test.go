package server

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/config"
	"github.com/cedarauth/cedar/pkg/observability"
	"github.com/cedarauth/cedar/pkg/push"
	"github.com/cedarauth/cedar/pkg/saml2"
	"github.com/cedarauth/cedar/pkg/saml2/binding"
	"github.com/cedarauth/cedar/pkg/saml2/proxy"
)

// askNode suspends for a username and succeeds once answered.
type askNode struct{}

func (askNode) Process(_ context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	if name, ok := authtree.FindName(tc.Callbacks); ok && name != "" {
		return authtree.GoTo("done").WithUniversalID("uid=" + name).Build()
	}
	return authtree.Send(&authtree.NameCallback{Prompt: "User Name"}).Build()
}
func (askNode) Inputs() []string   { return nil }
func (askNode) Outcomes() []string { return []string{"done"} }

// returnNode redirects out and completes when the client comes back with
// an authorization code in the query string, the social-provider shape.
type returnNode struct{}

func (returnNode) Process(_ context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	if codes := tc.Request.Parameters["code"]; len(codes) > 0 && codes[0] != "" {
		return authtree.GoTo("done").WithUniversalID("uid=code:" + codes[0]).Build()
	}
	return authtree.Send(&authtree.RedirectCallback{
		RedirectURL: "https://provider.example.com/authorize",
		Method:      "GET",
	}).Build()
}
func (returnNode) Inputs() []string   { return nil }
func (returnNode) Outcomes() []string { return []string{"done"} }

// denyNode always fails.
type denyNode struct{}

func (denyNode) Process(context.Context, *authtree.TreeContext) (*authtree.Action, error) {
	return authtree.GoTo("no").Build()
}
func (denyNode) Inputs() []string   { return nil }
func (denyNode) Outcomes() []string { return []string{"no"} }

func testTrees(t *testing.T) *authtree.TreeSet {
	t.Helper()

	login, err := authtree.NewTree("login", "ask", map[string]*authtree.TreeNode{
		"ask": {ID: "ask", Type: "Ask", Node: askNode{}, Next: map[string]string{"done": authtree.TerminalSuccess}},
	}, nil, nil)
	require.NoError(t, err)

	deny, err := authtree.NewTree("deny", "deny", map[string]*authtree.TreeNode{
		"deny": {ID: "deny", Type: "Deny", Node: denyNode{}, Next: map[string]string{"no": authtree.TerminalFailure}},
	}, nil, nil)
	require.NoError(t, err)

	social, err := authtree.NewTree("social", "return", map[string]*authtree.TreeNode{
		"return": {ID: "return", Type: "Return", Node: returnNode{}, Next: map[string]string{"done": authtree.TerminalSuccess}},
	}, nil, nil)
	require.NoError(t, err)

	return authtree.NewTreeSet(map[string]*authtree.Tree{"login": login, "deny": deny, "social": social})
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "8080",
			SessionTTL:      time.Minute,
			ShutdownTimeout: time.Second,
		},
		SAML: config.SAMLConfig{
			EntityID:     "https://proxy-idp.example.com",
			ProxyEnabled: true,
			AlwaysProxy:  true,
		},
	}
}

const upstreamMetadataXML = `<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://upstream-idp.example.com">
  <md:IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="https://upstream-idp.example.com/sso/post"/>
  </md:IDPSSODescriptor>
</md:EntityDescriptor>`

func testSAMLProxy(t *testing.T) *proxy.Proxy {
	t.Helper()

	registry := proxy.NewMetadataRegistry()
	_, err := registry.RegisterXML([]byte(upstreamMetadataXML))
	require.NoError(t, err)

	p, err := proxy.New(proxy.Options{
		EntityID: "https://proxy-idp.example.com",
		Finder:   &proxy.ScopedFinder{DefaultEntityID: "https://upstream-idp.example.com"},
		Metadata: registry,
		Cache:    proxy.NewCorrelationCache(32, time.Minute),
	})
	require.NoError(t, err)
	return p
}

func testServer(t *testing.T) (*Server, *push.MemoryDispatcher) {
	t.Helper()

	dispatcher := push.NewMemoryDispatcher(nil)
	s, err := New(Options{
		Config:   testConfig(),
		Trees:    testTrees(t),
		Proxy:    testSAMLProxy(t),
		Answerer: dispatcher,
		Logger:   observability.NopLogger(),
	})
	require.NoError(t, err)
	return s, dispatcher
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func TestAuthenticateCallbackLoop(t *testing.T) {
	s, _ := testServer(t)

	rec := postJSON(t, s, "/json/authenticate?tree=login", authenticateRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first authenticateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.NotEmpty(t, first.AuthID)
	assert.Equal(t, 1, s.sessionCount())

	cbs, err := authtree.UnmarshalCallbacks(first.Callbacks)
	require.NoError(t, err)
	require.Len(t, cbs, 1)
	cbs[0].(*authtree.NameCallback).Value = "alice"
	answered, err := authtree.MarshalCallbacks(cbs)
	require.NoError(t, err)

	rec = postJSON(t, s, "/json/authenticate?tree=login", authenticateRequest{
		AuthID:    first.AuthID,
		Callbacks: answered,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var final authenticateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	assert.Equal(t, "success", final.Status)
	assert.Equal(t, "uid=alice", final.UniversalID)
	assert.NotEmpty(t, final.TokenID)
	assert.Equal(t, 0, s.sessionCount(), "a resumed session is consumed")
}

func TestResumeSeesNewRequestParameters(t *testing.T) {
	s, _ := testServer(t)

	rec := postJSON(t, s, "/json/authenticate?tree=social", authenticateRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first authenticateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.NotEmpty(t, first.AuthID)

	cbs, err := authtree.UnmarshalCallbacks(first.Callbacks)
	require.NoError(t, err)
	require.Len(t, cbs, 1)
	require.IsType(t, &authtree.RedirectCallback{}, cbs[0])

	// The provider sends the client back with the code in the query
	// string; the resumed node must see this request, not the first one.
	rec = postJSON(t, s, "/json/authenticate?tree=social&code=xyz", authenticateRequest{
		AuthID:    first.AuthID,
		Callbacks: first.Callbacks,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var final authenticateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	assert.Equal(t, "success", final.Status)
	assert.Equal(t, "uid=code:xyz", final.UniversalID)
}

func TestAuthenticateFailureIsUnauthorized(t *testing.T) {
	s, _ := testServer(t)

	rec := postJSON(t, s, "/json/authenticate?tree=deny", authenticateRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp authenticateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failure", resp.Status)
}

func TestAuthenticateUnknownTree(t *testing.T) {
	s, _ := testServer(t)
	rec := postJSON(t, s, "/json/authenticate?tree=nope", authenticateRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthenticateRequiresTreeName(t *testing.T) {
	s, _ := testServer(t)
	rec := postJSON(t, s, "/json/authenticate", authenticateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticateExpiredSessionIsGone(t *testing.T) {
	s, _ := testServer(t)
	rec := postJSON(t, s, "/json/authenticate?tree=login", authenticateRequest{AuthID: "no-such-session"})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestPushAnswerEndpoint(t *testing.T) {
	s, dispatcher := testServer(t)
	require.NoError(t, dispatcher.Expect("msg-1"))

	rec := postJSON(t, s, "/json/push/answer", pushAnswerRequest{MessageID: "msg-1", Approved: true})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	state, err := dispatcher.Check(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, push.StatusApproved, state)

	rec = postJSON(t, s, "/json/push/answer", pushAnswerRequest{MessageID: "ghost", Approved: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

var formFieldRE = regexp.MustCompile(`name="(SAMLRequest|SAMLResponse)" value="([^"]+)"`)

func extractFormField(t *testing.T, body string) string {
	t.Helper()
	m := formFieldRE.FindStringSubmatch(body)
	require.NotNil(t, m, "no SAML form field in response body")
	// html/template escapes characters like "+" in attribute values; a
	// browser unescapes them before submitting the form.
	return html.UnescapeString(m[2])
}

func proxiedAuthnRequest(t *testing.T) *saml2.AuthnRequest {
	t.Helper()
	req := saml2.NewAuthnRequest()
	require.NoError(t, req.SetIssuer(saml2.NewIssuerValue("https://sp.example.com")))
	require.NoError(t, req.SetAssertionConsumerServiceURL("https://sp.example.com/acs"))
	scoping := saml2.NewScoping()
	require.NoError(t, scoping.SetProxyCount(2))
	require.NoError(t, req.SetScoping(scoping))
	return req
}

func TestProxySSOAndACSRoundTrip(t *testing.T) {
	s, _ := testServer(t)

	location, err := binding.EncodeRedirect(proxiedAuthnRequest(t), "https://proxy-idp.example.com/saml2/proxy/sso",
		binding.FieldSAMLRequest, "relay-123", nil)
	require.NoError(t, err)

	// Inbound leg: SP redirect binding to the proxy SSO endpoint.
	r := httptest.NewRequest(http.MethodGet, location, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://upstream-idp.example.com/sso/post")

	derivedXML, err := binding.DecodePost(extractFormField(t, rec.Body.String()))
	require.NoError(t, err)
	derived, err := saml2.ParseAuthnRequestString(derivedXML)
	require.NoError(t, err)
	assert.Equal(t, 1, derived.Scoping().ProxyCount())

	// Return leg: upstream Response posted to the proxy ACS.
	upstream := saml2.NewResponse()
	require.NoError(t, upstream.SetInResponseTo(derived.ID()))
	require.NoError(t, upstream.SetIssuer(saml2.NewIssuerValue("https://upstream-idp.example.com")))
	require.NoError(t, upstream.SetStatus(saml2.NewSuccessStatus()))
	msg, err := binding.EncodePost(upstream, "https://proxy-idp.example.com/saml2/proxy/acs",
		binding.FieldSAMLResponse, "")
	require.NoError(t, err)

	form := url.Values{binding.FieldSAMLResponse: {msg.Message}}.Encode()
	r = httptest.NewRequest(http.MethodPost, "/saml2/proxy/acs", strings.NewReader(form))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://sp.example.com/acs")

	proxiedXML, err := binding.DecodePost(extractFormField(t, rec.Body.String()))
	require.NoError(t, err)
	proxied, err := saml2.ParseResponseString(proxiedXML)
	require.NoError(t, err)
	assert.Equal(t, proxiedAuthnRequestID(t, location), proxied.InResponseTo())

	// A replayed response finds no correlation state.
	r = httptest.NewRequest(http.MethodPost, "/saml2/proxy/acs", strings.NewReader(form))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusGone, rec.Code)
}

// proxiedAuthnRequestID recovers the original request's ID from the
// redirect location used to start the flow.
func proxiedAuthnRequestID(t *testing.T, location string) string {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, location, nil)
	xml, err := binding.DecodeRedirect(r.URL.Query().Get(binding.FieldSAMLRequest))
	require.NoError(t, err)
	req, err := saml2.ParseAuthnRequestString(xml)
	require.NoError(t, err)
	return req.ID()
}

func TestProxySSORejectsNonProxyableRequest(t *testing.T) {
	s, _ := testServer(t)

	req := saml2.NewAuthnRequest()
	require.NoError(t, req.SetIssuer(saml2.NewIssuerValue("https://sp.example.com")))
	scoping := saml2.NewScoping()
	require.NoError(t, scoping.SetProxyCount(0))
	require.NoError(t, req.SetScoping(scoping))

	location, err := binding.EncodeRedirect(req, "https://proxy-idp.example.com/saml2/proxy/sso",
		binding.FieldSAMLRequest, "", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, location, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	empty, err := New(Options{Config: testConfig(), Trees: authtree.NewTreeSet(nil)})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	empty.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	observability.NewMetrics(registry)

	s, err := New(Options{
		Config:   testConfig(),
		Trees:    testTrees(t),
		Gatherer: registry,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListTrees(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/json/trees", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Trees []string `json:"trees"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"login", "deny", "social"}, body.Trees)
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	s, _ := testServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
