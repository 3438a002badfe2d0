package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("pvp")
	require.NoError(t, err)
	assert.Equal(t, ModePVP, m)

	m, err = ParseMode(" Boss ")
	require.NoError(t, err)
	assert.Equal(t, ModeBoss, m)

	_, err = ParseMode("ranked")
	assert.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Equal(t, []string{"PVP", "BOSS"}, ModeNames())
	assert.Equal(t, "Boss - Players vs Boss", ModeBoss.Description())
}

func TestPlayerJSONRoundTrip(t *testing.T) {
	p := NewPlayer("p-1", ModeBoss, time.Now())

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mode":"BOSS"`)
	assert.Contains(t, string(b), `"playerId":"p-1"`)

	var got Player
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Mode, got.Mode)
	assert.True(t, p.JoinedAt.Equal(got.JoinedAt))
	assert.Equal(t, p.JoinedAt.UnixMilli(), got.JoinedAt.UnixMilli())
}

func TestRoomJSONRoundTripEmpty(t *testing.T) {
	r := NewRoom("room_abcdef12", ModePVP, 2, time.Now())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"players":[]`)
	assert.Contains(t, string(b), `"currentPlayers":0`)
	assert.Contains(t, string(b), `"status":"FORMING"`)

	var got Room
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Mode, got.Mode)
	assert.Equal(t, r.Status, got.Status)
	assert.NotNil(t, got.Players)
	assert.Empty(t, got.Players)
	assert.Equal(t, 2, got.MaxPlayers)
	assert.Equal(t, 0, got.CurrentPlayers)
	assert.Equal(t, r.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestRoomJSONRoundTripMembers(t *testing.T) {
	r := NewRoom(NewRoomID(), ModeBoss, 4, time.Now())
	r.AddPlayer("a")
	r.AddPlayer("b")
	r.AddPlayer("c")
	r.PromoteIfReady(2)

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var got Room
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, []string{"a", "b", "c"}, got.Players)
	assert.Equal(t, 3, got.CurrentPlayers)
	assert.Equal(t, StatusReady, got.Status)
}

func TestNewRoomID(t *testing.T) {
	re := regexp.MustCompile(`^room_[a-f0-9]{8}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, re, NewRoomID())
	}
}

func TestRoomAddPlayerRules(t *testing.T) {
	r := NewRoom("r", ModePVP, 2, time.Now())

	assert.True(t, r.AddPlayer("a"))
	assert.False(t, r.AddPlayer("a"), "duplicate member")
	assert.True(t, r.AddPlayer("b"))
	assert.False(t, r.AddPlayer("c"), "room full")
	assert.Equal(t, 2, r.CurrentPlayers)

	boss := NewRoom("r2", ModeBoss, 4, time.Now())
	boss.AddPlayer("a")
	boss.Status = StatusInProgress
	assert.False(t, boss.AddPlayer("b"), "in progress rooms reject players")
	assert.Equal(t, []string{"a"}, boss.Players)
}

func TestRoomPromoteAndReady(t *testing.T) {
	r := NewRoom("r", ModeBoss, 4, time.Now())
	r.AddPlayer("a")
	assert.False(t, r.PromoteIfReady(2))
	assert.False(t, r.IsReady())

	r.AddPlayer("b")
	assert.True(t, r.PromoteIfReady(2))
	assert.Equal(t, StatusReady, r.Status)
	assert.True(t, r.IsReady())

	// minimum of 1 still needs two players to be ready
	single := NewRoom("s", ModeBoss, 4, time.Now())
	single.AddPlayer("a")
	assert.False(t, single.PromoteIfReady(1))
}

func TestRoomDemoteBelowMinimum(t *testing.T) {
	cases := []struct {
		from RoomStatus
		want Transition
	}{
		{StatusForming, TransitionNone},
		{StatusReady, TransitionRegroup},
		{StatusInProgress, TransitionAbandonedMidGame},
		{StatusFinished, TransitionRegroup},
	}
	for _, tc := range cases {
		t.Run(tc.from.String(), func(t *testing.T) {
			r := NewRoom("r", ModeBoss, 4, time.Now())
			r.AddPlayer("a")
			r.AddPlayer("b")
			r.Status = tc.from

			require.True(t, r.RemovePlayer("b"))
			assert.Equal(t, tc.want, r.DemoteBelowMinimum(2))
			assert.Equal(t, StatusForming, r.Status)
			assert.Equal(t, 1, r.CurrentPlayers)
		})
	}

	r := NewRoom("r", ModeBoss, 4, time.Now())
	r.AddPlayer("a")
	r.AddPlayer("b")
	r.AddPlayer("c")
	r.Status = StatusInProgress
	r.RemovePlayer("c")
	assert.Equal(t, TransitionNone, r.DemoteBelowMinimum(2))
	assert.Equal(t, StatusInProgress, r.Status)
	assert.False(t, r.RemovePlayer("zzz"))
}

func TestRoomCloneIsDisposable(t *testing.T) {
	r := NewRoom("r", ModeBoss, 4, time.Now())
	r.AddPlayer("a")
	c := r.Clone()
	c.AddPlayer("b")
	assert.Equal(t, []string{"a"}, r.Players)
	assert.Equal(t, []string{"a", "b"}, c.Players)
}

func TestErrorKinds(t *testing.T) {
	err := NotFound("room_1", "room not found: %s", "room_1")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))

	wrapped := fmt.Errorf("outer: %w", Conflict("p1", "player %s already queued", "p1"))
	assert.True(t, IsConflict(wrapped))

	var de *Error
	require.True(t, errors.As(wrapped, &de))
	assert.Equal(t, "p1", de.ID)

	storeErr := StoreError(errors.New("connection refused"), "rpush")
	assert.Equal(t, KindInternal, KindOf(storeErr))
	assert.Contains(t, storeErr.Error(), "connection refused")
	assert.Equal(t, 1, strings.Count(storeErr.Error(), "rpush"), "op appears once")
	assert.Nil(t, StoreError(nil, "noop"))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestNormalizePlayerID(t *testing.T) {
	id, err := NormalizePlayerID("  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = NormalizePlayerID("   ")
	assert.Equal(t, KindValidation, KindOf(err))

	long := make([]rune, 101)
	for i := range long {
		long[i] = 'x'
	}
	_, err = NormalizePlayerID(string(long))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestValidateRoomID(t *testing.T) {
	assert.NoError(t, ValidateRoomID(NewRoomID()))
	assert.Error(t, ValidateRoomID("room_XYZ"))
	assert.Error(t, ValidateRoomID("abc"))
}
