package authtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackWireRoundTrip(t *testing.T) {
	cbs := []Callback{
		&NameCallback{Prompt: "User Name"},
		&PasswordCallback{Prompt: "Password"},
		&TextOutputCallback{MessageType: MessageTypeWarning, Message: "account will lock after 3 attempts"},
		&RedirectCallback{RedirectURL: "https://idp.example.com/authorize", Method: "GET", TrackingID: "t-1"},
		&PollingWaitCallback{WaitTimeMillis: 4000, Message: "waiting for push approval"},
		&HiddenValueCallback{ID: "nonce", Value: "abc123"},
		&ConfirmationCallback{Options: []string{"Approve", "Deny"}, Selected: 1},
	}

	raw, err := MarshalCallbacks(cbs)
	require.NoError(t, err)

	decoded, err := UnmarshalCallbacks(raw)
	require.NoError(t, err)
	require.Equal(t, cbs, decoded)
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalCallbacks([]byte(`[{"type":"TelepathyCallback","data":{}}]`))
	assert.ErrorContains(t, err, "unknown callback type")
}

func TestFindHelpers(t *testing.T) {
	cbs := []Callback{
		&TextOutputCallback{Message: "hello"},
		&NameCallback{Prompt: "User Name", Value: "alice"},
		&PasswordCallback{Prompt: "Password", Value: "hunter2"},
		&HiddenValueCallback{ID: "nonce", Value: "abc123"},
	}

	name, ok := FindName(cbs)
	require.True(t, ok)
	assert.Equal(t, "alice", name)

	password, ok := FindPassword(cbs)
	require.True(t, ok)
	assert.Equal(t, "hunter2", password)

	nonce, ok := FindHiddenValue(cbs, "nonce")
	require.True(t, ok)
	assert.Equal(t, "abc123", nonce)

	_, ok = FindHiddenValue(cbs, "other")
	assert.False(t, ok)

	_, ok = FindName(nil)
	assert.False(t, ok)
}
