package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("production")
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, m)

	m, err = ParseMode("Development")
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, m)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}

func TestFromModeDisabledStoresNothing(t *testing.T) {
	s := FromMode(ModeDisabled)
	assert.Equal(t, Settings{}, s)
}

func TestFromModeRawKeepsRawAndSourceMap(t *testing.T) {
	s := FromMode(ModeRaw)
	assert.True(t, s.StoreRaw)
	assert.True(t, s.StoreSourceMap)
	assert.False(t, s.StoreSent)
	assert.True(t, s.MessageRecoveryEnabled)
}

func TestFromModeUnknownFallsBackToProduction(t *testing.T) {
	assert.Equal(t, FromMode(ModeProduction), FromMode(Mode("garbage")))
}

func TestFromModeLeavesEncryptDataUnset(t *testing.T) {
	s := FromMode(ModeDevelopment)
	assert.False(t, s.EncryptData)
}
