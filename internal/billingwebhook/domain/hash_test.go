package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPayload(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)

	assert.Equal(t, HashPayload(body), HashPayload([]byte(`{"id":"evt_1"}`)))
	assert.NotEqual(t, HashPayload(body), HashPayload([]byte(`{"id": "evt_1"}`)))
	assert.Len(t, HashPayload(body), 64)
	// sha256 of the empty string
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashPayload(nil))
}

func TestLegacyEventID(t *testing.T) {
	body := []byte(`{"workspaceId":"w"}`)

	assert.Equal(t, "evt_manual", LegacyEventID(body, " evt_manual "))
	assert.Equal(t, LegacyEventIDPrefix+HashPayload(body), LegacyEventID(body, ""))
	assert.Equal(t, LegacyEventID(body, ""), LegacyEventID([]byte(`{"workspaceId":"w"}`), "  "))
}

func TestRejectReasonUnavailable(t *testing.T) {
	assert.True(t, RejectMissingSecret.Unavailable())
	assert.True(t, RejectMissingVerifier.Unavailable())
	assert.False(t, RejectInvalidSignature.Unavailable())
	assert.False(t, RejectInvalidShape.Unavailable())
	assert.False(t, RejectMissingSignature.Unavailable())
	assert.False(t, RejectUnauthorized.Unavailable())
}
