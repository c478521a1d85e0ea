package saml2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeImmutableRejectsFurtherMutation(t *testing.T) {
	req := buildAuthnRequest(t)
	req.MakeImmutable()

	assert.ErrorIs(t, req.SetID("_other"), ErrImmutable)
	assert.ErrorIs(t, req.SetDestination("https://elsewhere.example.com"), ErrImmutable)
	assert.ErrorIs(t, req.SetForceAuthn(false), ErrImmutable)
	assert.ErrorIs(t, req.SetIssuer(NewIssuerValue("x")), ErrImmutable)
	assert.ErrorIs(t, req.SetScoping(NewScoping()), ErrImmutable)
}

func TestMakeImmutablePropagatesToChildren(t *testing.T) {
	req := buildAuthnRequest(t)
	scoping := req.Scoping()
	policy := req.NameIDPolicy()
	issuer := req.Issuer()

	req.MakeImmutable()

	assert.ErrorIs(t, scoping.AddRequesterID("https://late.example.com"), ErrImmutable)
	assert.ErrorIs(t, scoping.SetProxyCount(0), ErrImmutable)
	assert.ErrorIs(t, policy.SetAllowCreate(false), ErrImmutable)
	assert.ErrorIs(t, issuer.SetValue("other"), ErrImmutable)
}

func TestMakeImmutablePropagatesThroughResponseTree(t *testing.T) {
	resp := buildResponse(t)
	assertion := resp.Assertions()[0]
	subject := assertion.Subject()
	conditions := assertion.Conditions()
	status := resp.Status()

	resp.MakeImmutable()

	assert.ErrorIs(t, resp.AddAssertion(NewAssertion()), ErrImmutable)
	assert.ErrorIs(t, assertion.SetID("_other"), ErrImmutable)
	assert.ErrorIs(t, subject.SetNameID(NewNameID()), ErrImmutable)
	assert.ErrorIs(t, conditions.SetNotBefore(time.Now()), ErrImmutable)
	assert.ErrorIs(t, status.SetMessage(NewStatusMessage("late")), ErrImmutable)
	assert.ErrorIs(t, status.Code().SetValue(StatusRequester), ErrImmutable)
}

func TestParsedObjectsAreFrozen(t *testing.T) {
	xml, err := ToXMLString(buildAuthnRequest(t), true, true)
	require.NoError(t, err)

	parsed, err := ParseAuthnRequestString(xml)
	require.NoError(t, err)

	assert.ErrorIs(t, parsed.SetID("_other"), ErrImmutable)
	assert.ErrorIs(t, parsed.Scoping().SetProxyCount(9), ErrImmutable)
	assert.ErrorIs(t, parsed.NameIDPolicy().SetFormat(""), ErrImmutable)
}

func TestMutationAllowedBeforeFreeze(t *testing.T) {
	req := NewAuthnRequest()
	require.NoError(t, req.SetDestination("https://a.example.com"))
	require.NoError(t, req.SetDestination("https://b.example.com"))
	assert.Equal(t, "https://b.example.com", req.Destination())

	req.MakeImmutable()
	assert.ErrorIs(t, req.SetDestination("https://c.example.com"), ErrImmutable)
	assert.Equal(t, "https://b.example.com", req.Destination())
}

func TestFrozenObjectStillSerializes(t *testing.T) {
	req := buildAuthnRequest(t)
	req.MakeImmutable()

	xml, err := ToXMLString(req, true, true)
	require.NoError(t, err)
	assert.Contains(t, xml, `ID="_req-1"`)
}
