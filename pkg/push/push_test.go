package push

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedarauth/cedar/pkg/identity"
)

func TestStateTransitionTable(t *testing.T) {
	assert.True(t, canTransition(StateStart, StateUsername))
	assert.True(t, canTransition(StateUsername, StateWait))
	assert.True(t, canTransition(StateWait, StateWait))
	assert.True(t, canTransition(StateWait, StateEmergency))
	assert.True(t, canTransition(StateWait, StateComplete))
	assert.True(t, canTransition(StateEmergency, StateEmergencyUsed))

	assert.False(t, canTransition(StateStart, StateWait))
	assert.False(t, canTransition(StateUsername, StateComplete))
	assert.False(t, canTransition(StateComplete, StateWait))
	assert.False(t, canTransition(StateEmergencyUsed, StateWait))

	assert.True(t, StateComplete.Terminal())
	assert.True(t, StateEmergencyUsed.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateWait.Terminal())
}

func TestMemoryDispatcherLifecycle(t *testing.T) {
	d := NewMemoryDispatcher(nil)
	ctx := context.Background()

	msg := NewMessage("/", "device-1", "Sign in", "Approve?", time.Minute)
	require.NoError(t, d.Send(ctx, msg))

	state, err := d.Check(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, state, "unexpected message reads as unknown")

	require.NoError(t, d.Expect(msg.ID))
	state, err = d.Check(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, state)

	require.NoError(t, d.Answer(msg.ID, true))
	state, err = d.Check(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, state)

	d.Forget(msg.ID)
	state, err = d.Check(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, state)

	assert.ErrorIs(t, d.Answer("ghost", true), ErrUnknownMessage)
}

func TestAdvisorWaitingAndBackoffGrowth(t *testing.T) {
	d := NewMemoryDispatcher(nil)
	require.NoError(t, d.Expect("msg-1"))
	a := NewAdvisor(d, 100, 100)

	now := time.Now()
	deadline := now.Add(time.Minute)

	first, err := a.Advise(context.Background(), "msg-1", deadline, now)
	require.NoError(t, err)
	assert.Equal(t, Waiting, first.State)

	second, err := a.Advise(context.Background(), "msg-1", deadline, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, Waiting, second.State)
	assert.Greater(t, second.RetryMillis, first.RetryMillis)
}

func TestAdvisorTimeout(t *testing.T) {
	d := NewMemoryDispatcher(nil)
	require.NoError(t, d.Expect("msg-1"))
	a := NewAdvisor(d, 3, 5)

	now := time.Now()
	advice, err := a.Advise(context.Background(), "msg-1", now.Add(-time.Second), now)
	require.NoError(t, err)
	assert.Equal(t, Timeout, advice.State)
}

func TestAdvisorSpammed(t *testing.T) {
	d := NewMemoryDispatcher(nil)
	require.NoError(t, d.Expect("msg-1"))
	a := NewAdvisor(d, 3, 5)

	now := time.Now()
	deadline := now.Add(time.Minute)

	// Burst of instantaneous polls exhausts the bucket; no time passes so
	// nothing refills.
	var advice *Advice
	var err error
	for i := 0; i < 6; i++ {
		advice, err = a.Advise(context.Background(), "msg-1", deadline, now)
		require.NoError(t, err)
	}
	assert.Equal(t, Spammed, advice.State)
}

func TestAdvisorPacedPollingIsNotSpam(t *testing.T) {
	d := NewMemoryDispatcher(nil)
	require.NoError(t, d.Expect("msg-1"))
	a := NewAdvisor(d, 3, 5)

	now := time.Now()
	deadline := now.Add(time.Minute)
	for i := 0; i < 20; i++ {
		advice, err := a.Advise(context.Background(), "msg-1", deadline, now)
		require.NoError(t, err)
		assert.Equal(t, Waiting, advice.State)
		now = now.Add(2 * time.Second)
	}
}

func TestAdvisorComplete(t *testing.T) {
	d := NewMemoryDispatcher(nil)
	require.NoError(t, d.Expect("msg-1"))
	a := NewAdvisor(d, 3, 5)

	require.NoError(t, d.Answer("msg-1", false))
	advice, err := a.Advise(context.Background(), "msg-1", time.Now().Add(time.Minute), time.Now())
	require.NoError(t, err)
	assert.Equal(t, Complete, advice.State)
	assert.False(t, advice.Approved)
}

func testModule(t *testing.T) (*Module, *MemoryDispatcher, *identity.MemoryStore) {
	t.Helper()

	store := identity.NewMemoryStore()
	store.AddIdentity(
		identity.Identity{UniversalID: "uid=alice,ou=people", Name: "alice", Realm: "/"},
		map[string][]string{
			AttrDeviceID:      {"device-1"},
			AttrRecoveryCodes: {"code-a", "code-b", "code-c"},
		})

	d := NewMemoryDispatcher(nil)
	advisor := NewAdvisor(d, 100, 100)
	m := NewModule(ModuleConfig{Realm: "/", Subject: "Sign in", Body: "Approve?", Timeout: time.Minute},
		store, d, advisor, nil, nil)
	return m, d, store
}

func TestModuleApprovalFlow(t *testing.T) {
	m, d, _ := testModule(t)
	ctx := context.Background()

	step, err := m.Start()
	require.NoError(t, err)
	require.NotNil(t, step.Username)
	assert.Equal(t, StateUsername, step.State)

	step, err = m.SubmitUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, step.Wait)
	assert.Equal(t, StateWait, step.State)

	// Device has not answered yet.
	step, err = m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateWait, step.State)

	require.NoError(t, d.Answer(m.messageID, true))
	step, err = m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, step.State)
	require.NotNil(t, step.Identity)
	assert.Equal(t, "uid=alice,ou=people", step.Identity.UniversalID)
}

func TestModuleDenialFlow(t *testing.T) {
	m, d, _ := testModule(t)
	ctx := context.Background()

	_, err := m.Start()
	require.NoError(t, err)
	_, err = m.SubmitUsername(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, d.Answer(m.messageID, false))
	_, err = m.Poll(ctx)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Equal(t, StateFailed, m.State())
}

func TestModuleTimeout(t *testing.T) {
	m, _, _ := testModule(t)
	ctx := context.Background()

	_, err := m.Start()
	require.NoError(t, err)
	_, err = m.SubmitUsername(ctx, "alice")
	require.NoError(t, err)

	m.now = func() time.Time { return m.deadline.Add(time.Second) }
	_, err = m.Poll(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateFailed, m.State())
}

func TestModuleRejectsUnknownUserAndMissingDevice(t *testing.T) {
	m, _, store := testModule(t)
	ctx := context.Background()

	_, err := m.Start()
	require.NoError(t, err)
	_, err = m.SubmitUsername(ctx, "mallory")
	assert.ErrorIs(t, err, identity.ErrNotFound)

	store.AddIdentity(identity.Identity{UniversalID: "uid=bob", Name: "bob", Realm: "/"}, nil)
	m2 := NewModule(ModuleConfig{Realm: "/", Timeout: time.Minute}, store, NewMemoryDispatcher(nil), NewAdvisor(NewMemoryDispatcher(nil), 3, 5), nil, nil)
	_, err = m2.Start()
	require.NoError(t, err)
	_, err = m2.SubmitUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestModuleEmergencyCodeConsumption(t *testing.T) {
	m, _, store := testModule(t)
	ctx := context.Background()

	_, err := m.Start()
	require.NoError(t, err)
	_, err = m.SubmitUsername(ctx, "alice")
	require.NoError(t, err)

	step, err := m.RequestEmergency()
	require.NoError(t, err)
	require.NotNil(t, step.Emergency)

	_, err = m.SubmitEmergencyCode(ctx, "not-a-code")
	assert.ErrorIs(t, err, ErrBadEmergencyCode)

	step, err = m.SubmitEmergencyCode(ctx, "code-b")
	require.NoError(t, err)
	assert.Equal(t, StateEmergencyUsed, step.State)
	require.NotNil(t, step.Identity)

	// The used code is gone, the others remain, and the change was saved.
	codes, err := store.GetAttribute(ctx, step.Identity, AttrRecoveryCodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"code-a", "code-c"}, codes)
	assert.Equal(t, 1, store.SaveCount())
}

func TestModuleEmergencySaveFailureKeepsCode(t *testing.T) {
	m, _, store := testModule(t)
	ctx := context.Background()

	_, err := m.Start()
	require.NoError(t, err)
	_, err = m.SubmitUsername(ctx, "alice")
	require.NoError(t, err)
	_, err = m.RequestEmergency()
	require.NoError(t, err)

	boom := assert.AnError
	store.FailWith(boom)
	_, err = m.SubmitEmergencyCode(ctx, "code-b")
	assert.Error(t, err)

	store.FailWith(nil)
	codes, err := store.GetAttribute(ctx, m.subject, AttrRecoveryCodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"code-a", "code-b", "code-c"}, codes,
		"a failed store operation must leave the code set untouched")
	assert.Equal(t, StateEmergency, m.State())
}

func TestModuleRejectsOutOfOrderCalls(t *testing.T) {
	m, _, _ := testModule(t)

	_, err := m.Poll(context.Background())
	assert.ErrorIs(t, err, ErrBadTransition)

	_, err = m.SubmitUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrBadTransition)
}
