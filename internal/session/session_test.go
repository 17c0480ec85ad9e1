package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginResponse_Decode(t *testing.T) {
	t.Parallel()
	body := `{"access_token":"t1","refresh_token":"r1","token_type":"bearer","expires_in":3600,` +
		`"user_id":7,"email":"a@ku.th","name":"A","role":"student"}`

	var resp LoginResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	assert.Equal(t, "t1", resp.AccessToken)
	assert.Equal(t, "r1", resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, &UserProfile{ID: 7, Email: "a@ku.th", Name: "A", Role: "student"}, resp.Profile())
}

func TestLoginResponse_OptionalFields(t *testing.T) {
	t.Parallel()
	var resp LoginResponse
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"t1","token_type":"bearer","user_id":1}`), &resp))

	assert.Empty(t, resp.RefreshToken)
	assert.Zero(t, resp.ExpiresIn)
}

func TestTokenResponse_Profile(t *testing.T) {
	t.Parallel()
	assert.Nil(t, (&TokenResponse{AccessToken: "t"}).profile())
	assert.Equal(t, int64(5), (&TokenResponse{UserID: 5}).profile().ID)
	assert.Equal(t, "x@ku.th", (&TokenResponse{Email: "x@ku.th"}).profile().Email)
}

func TestState_IsAuthenticated(t *testing.T) {
	t.Parallel()
	assert.False(t, State{}.IsAuthenticated())
	assert.False(t, State{RefreshToken: "r"}.IsAuthenticated())
	assert.True(t, State{AccessToken: "t"}.IsAuthenticated())
	assert.True(t, State{RefreshToken: "r"}.HasRefreshToken())
}

func TestState_JSONOmitsTokens(t *testing.T) {
	t.Parallel()
	st := State{
		AccessToken:  "secret-access",
		RefreshToken: "secret-refresh",
		TokenExpiry:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		User:         &UserProfile{ID: 1},
	}

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), "token_expiry")
}

func TestState_Clone(t *testing.T) {
	t.Parallel()
	orig := State{AccessToken: "t", User: &UserProfile{Name: "A"}}
	cp := orig.clone()
	cp.User.Name = "B"
	assert.Equal(t, "A", orig.User.Name)

	assert.Nil(t, State{}.clone().User)
}

func TestRefresherFunc(t *testing.T) {
	t.Parallel()
	f := RefresherFunc(func(_ context.Context, token string) (*TokenResponse, error) {
		return &TokenResponse{AccessToken: token + "-new"}, nil
	})

	resp, err := f.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1-new", resp.AccessToken)
}
