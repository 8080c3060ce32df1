package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSeed = `
accounts:
  - id: acct-1
    display_name: Renegade
  - id: acct-2
    display_name: Raider
    banned: true
relations:
  - from: acct-1
    to: acct-2
    status: ACCEPTED
    mutual: true
  - from: acct-1
    to: acct-3
    status: PENDING
`

func TestLoadFromBytes(t *testing.T) {
	m, err := LoadFromBytes([]byte(validSeed))
	require.NoError(t, err)

	account, err := m.FindAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Renegade", account.DisplayName)

	banned, err := m.FindAccount(context.Background(), "acct-2")
	require.NoError(t, err)
	assert.True(t, banned.Banned)

	accepted, err := m.ListAcceptedRelations(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"acct-2"}, accepted)

	backward, err := m.ListAcceptedRelations(context.Background(), "acct-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"acct-1"}, backward)
}

func TestLoadRejectsMissingID(t *testing.T) {
	_, err := LoadFromBytes([]byte("accounts:\n  - display_name: Ghost\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestLoadRejectsMissingDisplayName(t *testing.T) {
	_, err := LoadFromBytes([]byte("accounts:\n  - id: acct-1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "display_name is required")
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	seed := `
accounts:
  - id: acct-1
    display_name: Renegade
  - id: acct-1
    display_name: Shadow
`
	_, err := LoadFromBytes([]byte(seed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestLoadRejectsUnknownRelationStatus(t *testing.T) {
	seed := `
relations:
  - from: acct-1
    to: acct-2
    status: BLOCKED
`
	_, err := LoadFromBytes([]byte(seed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("accounts: ["))
	require.Error(t, err)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/seed.yaml")
	require.Error(t, err)
}
