package token

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	return c.t
}

func parse(t *testing.T, raw string) url.Values {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, DownloadPath, u.Path)
	return u.Query()
}

func TestSigner_Disabled(t *testing.T) {
	s := NewSigner("", 0)
	assert.False(t, s.Enabled())
	assert.Nil(t, s.Issue("n1", "u1", "f1", time.Minute))

	ok, reason := s.Verify("n1", "u1", "f1", "1", "00")
	assert.False(t, ok)
	assert.Equal(t, ReasonSigningDisabled, reason)
}

func TestSigner_Expiry(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 500_000_000)}
	s := NewSigner("secret", 0, WithClock(c.now))

	signed := s.Issue("n1", "u1", "f1", time.Second)
	require.NotNil(t, signed)

	grant, reason := s.VerifyQuery(parse(t, signed.URL))
	require.Equal(t, ReasonNone, reason)
	assert.Equal(t, Grant{NoteID: "n1", OwnerID: "u1", FileID: "f1", Exp: signed.ExpiresAt.Unix()}, *grant)

	c.t = c.t.Add(2 * time.Second)
	_, reason = s.VerifyQuery(parse(t, signed.URL))
	assert.Equal(t, ReasonExpired, reason)
}

func TestSigner_DefaultTTL(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	s := NewSigner("secret", 0, WithClock(c.now), WithBaseURL("https://notes.example.com/"))

	signed := s.Issue("n1", "u1", "f1", 0)
	require.NotNil(t, signed)
	assert.Equal(t, c.t.Add(DefaultTTL), signed.ExpiresAt)
	assert.True(t, strings.HasPrefix(signed.URL, "https://notes.example.com/attachments/download?"))
}

func TestSigner_Tamper(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	s := NewSigner("secret", time.Minute, WithClock(c.now))
	signed := s.Issue("n1", "u1", "f1", 0)
	require.NotNil(t, signed)
	q := parse(t, signed.URL)
	sig := q.Get("sig")
	exp := q.Get("exp")

	// flip every position of the signature to another hex digit
	for i := range sig {
		b := []byte(sig)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		ok, reason := s.Verify("n1", "u1", "f1", exp, string(b))
		assert.False(t, ok)
		assert.Equal(t, ReasonInvalidSignature, reason, "position %d", i)
	}

	tests := []struct {
		name   string
		mutate func(q url.Values)
		reason Reason
	}{
		{name: "other note", mutate: func(q url.Values) { q.Set("noteId", "n2") }, reason: ReasonInvalidSignature},
		{name: "other owner", mutate: func(q url.Values) { q.Set("ownerId", "u2") }, reason: ReasonInvalidSignature},
		{name: "other file", mutate: func(q url.Values) { q.Set("fileId", "f2") }, reason: ReasonInvalidSignature},
		{name: "missing file", mutate: func(q url.Values) { q.Del("fileId") }, reason: ReasonInvalidSignature},
		{name: "extended exp", mutate: func(q url.Values) {
			exp, _ := strconv.ParseInt(q.Get("exp"), 10, 64)
			q.Set("exp", strconv.FormatInt(exp+3600, 10))
		}, reason: ReasonInvalidSignature},
		{name: "missing exp", mutate: func(q url.Values) { q.Del("exp") }, reason: ReasonInvalidExp},
		{name: "garbage exp", mutate: func(q url.Values) { q.Set("exp", "soon") }, reason: ReasonInvalidExp},
		{name: "missing sig", mutate: func(q url.Values) { q.Del("sig") }, reason: ReasonSignatureUnavailable},
		{name: "non hex sig", mutate: func(q url.Values) { q.Set("sig", "zz") }, reason: ReasonInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := parse(t, signed.URL)
			tt.mutate(q)
			grant, reason := s.VerifyQuery(q)
			assert.Nil(t, grant)
			assert.Equal(t, tt.reason, reason)
		})
	}

	other := NewSigner("other-secret", time.Minute, WithClock(c.now))
	_, reason := other.VerifyQuery(q)
	assert.Equal(t, ReasonInvalidSignature, reason)
}
