package account

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	tm := NewTokenManager("secret", time.Hour)
	tm.now = func() time.Time { return now }

	token, expiresAt, err := tm.Issue("u1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UID)
	assert.Equal(t, "ada@example.com", claims.Email)

	tests := []struct {
		name  string
		token func() string
		now   time.Time
	}{
		{
			name:  "expired",
			token: func() string { return token },
			now:   now.Add(2 * time.Hour),
		},
		{
			name: "wrong_secret",
			token: func() string {
				other := NewTokenManager("other", time.Hour)
				other.now = tm.now
				s, _, err := other.Issue("u1", "ada@example.com")
				require.NoError(t, err)
				return s
			},
			now: now,
		},
		{
			name: "wrong_algorithm",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UID: "u1"}).SignedString([]byte("secret"))
				require.NoError(t, err)
				return s
			},
			now: now,
		},
		{
			name: "missing_uid",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("secret"))
				require.NoError(t, err)
				return s
			},
			now: now,
		},
		{
			name:  "garbage",
			token: func() string { return "not.a.token" },
			now:   now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewTokenManager("secret", time.Hour)
			parser.now = func() time.Time { return tt.now }
			_, err := parser.Parse(tt.token())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
