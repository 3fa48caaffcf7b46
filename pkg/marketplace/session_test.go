package marketplace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Session_Expired(t *testing.T) {
	now := time.Unix(1760000000, 0)

	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{name: "nil session", session: nil, want: true},
		{name: "no exp claim", session: &Session{Token: "t"}, want: false},
		{name: "future exp", session: &Session{ExpiresAt: now.Add(time.Second)}, want: false},
		{name: "exp equals now", session: &Session{ExpiresAt: now}, want: true},
		{name: "past exp", session: &Session{ExpiresAt: now.Add(-time.Second)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.Expired(now))
		})
	}
}

func Test_ParseSessionToken(t *testing.T) {
	fake := newFakeMarketplace(t)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	t.Run("Should read claims without a key set", func(t *testing.T) {
		token := fake.issueToken(fixtureAddress, exp)
		session, err := parseSessionToken(token, nil, time.Now)
		require.NoError(t, err)
		assert.Equal(t, token, session.Token)
		assert.Equal(t, fixtureAddress, session.Subject)
		assert.True(t, exp.Equal(session.ExpiresAt))
	})

	t.Run("Should verify with a key set", func(t *testing.T) {
		token := fake.issueToken(fixtureAddress, exp)
		session, err := parseSessionToken(token, fake.keySet, time.Now)
		require.NoError(t, err)
		assert.Equal(t, fixtureAddress, session.Subject)
	})

	t.Run("Should tolerate small clock skew", func(t *testing.T) {
		token := fake.issueToken(fixtureAddress, exp)
		late := func() time.Time { return exp.Add(10 * time.Second) }
		_, err := parseSessionToken(token, fake.keySet, late)
		assert.NoError(t, err)

		tooLate := func() time.Time { return exp.Add(time.Minute) }
		_, err = parseSessionToken(token, fake.keySet, tooLate)
		assert.Error(t, err)
	})

	t.Run("Should reject garbage", func(t *testing.T) {
		for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
			_, err := parseSessionToken(token, nil, time.Now)
			require.Error(t, err, token)
			assert.Contains(t, err.Error(), "invalid session token")
		}
	})
}
