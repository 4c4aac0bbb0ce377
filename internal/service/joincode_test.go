package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomJoinCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := randomJoinCode()
		require.NoError(t, err)
		require.True(t, IsJoinCode(code), code)
		seen[code] = true
	}
	assert.Len(t, seen, 200)
}

func TestIsJoinCode(t *testing.T) {
	assert.True(t, IsJoinCode("SEC_AbC123xyz789"))
	assert.False(t, IsJoinCode("SEC_short"))
	assert.False(t, IsJoinCode("sec_AbC123xyz789"))
	assert.False(t, IsJoinCode("SEC_AbC123xyz78!"))
	assert.False(t, IsJoinCode(""))
}

func TestIssueJoinCodeRetriesOnCollision(t *testing.T) {
	db := newFakeDB()
	db.takenCodes["SEC_AAAAAAAAAAAA"] = true
	repos, _ := db.repos()

	codes := []string{"SEC_AAAAAAAAAAAA", "SEC_BBBBBBBBBBBB"}
	next := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	code, err := issueJoinCode(context.Background(), repos.Sections, next, 5)
	require.NoError(t, err)
	assert.Equal(t, "SEC_BBBBBBBBBBBB", code)
}

func TestIssueJoinCodeExhausted(t *testing.T) {
	db := newFakeDB()
	db.takenCodes["SEC_AAAAAAAAAAAA"] = true
	repos, _ := db.repos()

	calls := 0
	next := func() (string, error) {
		calls++
		return "SEC_AAAAAAAAAAAA", nil
	}
	_, err := issueJoinCode(context.Background(), repos.Sections, next, 0)
	assert.ErrorIs(t, err, ErrJoinCodeExhausted)
	assert.Equal(t, DefaultJoinCodeAttempts, calls)
}
