// Package token issues and verifies stateless signed attachment download URLs.
//
// A signature is HMAC-SHA256 over "{noteId}.{ownerId}.{fileId}.{exp}", hex encoded.
// Nothing is persisted: a token stays valid until exp and cannot be revoked earlier.
package token

import (
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const DownloadPath = "/attachments/download"

const DefaultTTL = 300 * time.Second

// Reason explains a failed verification.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonSigningDisabled      Reason = "signing_disabled"
	ReasonInvalidExp           Reason = "invalid_exp"
	ReasonExpired              Reason = "expired"
	ReasonSignatureUnavailable Reason = "signature_unavailable"
	ReasonInvalidSignature     Reason = "invalid_signature"
)

// Grant is the resource a valid token authorizes.
type Grant struct {
	NoteID  string
	OwnerID string
	FileID  string
	Exp     int64
}

type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Option func(*Signer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// WithBaseURL prefixes issued URLs, e.g. https://notes.example.com.
func WithBaseURL(base string) Option {
	return func(s *Signer) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

type Signer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	method  *jwt.SigningMethodHMAC
	now     func() time.Time
}

// NewSigner returns a signer. An empty secret disables signing, Issue then returns nil
// and Verify reports signing_disabled.
func NewSigner(secret string, ttl time.Duration, opts ...Option) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

func message(noteID, ownerID, fileID string, exp int64) string {
	return noteID + "." + ownerID + "." + fileID + "." + strconv.FormatInt(exp, 10)
}

// Sign returns the hex signature of a grant.
func (s *Signer) Sign(g Grant) (string, error) {
	sig, err := s.method.Sign(message(g.NoteID, g.OwnerID, g.FileID, g.Exp), s.secret)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sig), nil
}

// Issue mints a download URL valid for ttl, or the default TTL when ttl <= 0.
// It returns nil when signing is disabled.
func (s *Signer) Issue(noteID, ownerID, fileID string, ttl time.Duration) *SignedURL {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	g := Grant{NoteID: noteID, OwnerID: ownerID, FileID: fileID, Exp: expiresAt.Unix()}

	sig, err := s.Sign(g)
	if err != nil {
		logrus.Errorf("sign download url for file %s: %v", fileID, err)
		return nil
	}

	q := url.Values{}
	q.Set("noteId", noteID)
	q.Set("ownerId", ownerID)
	q.Set("fileId", fileID)
	q.Set("exp", strconv.FormatInt(g.Exp, 10))
	q.Set("sig", sig)

	return &SignedURL{
		URL:       s.baseURL + DownloadPath + "?" + q.Encode(),
		ExpiresAt: expiresAt,
	}
}

// Verify checks a token against its plaintext parameters.
func (s *Signer) Verify(noteID, ownerID, fileID, exp, sig string) (bool, Reason) {
	if !s.Enabled() {
		return false, ReasonSigningDisabled
	}

	expAt, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return false, ReasonInvalidExp
	}
	if expAt < s.now().Unix() {
		return false, ReasonExpired
	}

	if sig == "" {
		return false, ReasonSignatureUnavailable
	}
	raw, err := hex.DecodeString(sig)
	if err != nil || noteID == "" || ownerID == "" || fileID == "" {
		return false, ReasonInvalidSignature
	}

	// hmac.Equal under the hood
	err = s.method.Verify(message(noteID, ownerID, fileID, expAt), raw, s.secret)
	switch {
	case err == nil:
		return true, ReasonNone
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return false, ReasonInvalidSignature
	default:
		return false, ReasonSignatureUnavailable
	}
}

// VerifyQuery verifies the query parameters of a download URL.
func (s *Signer) VerifyQuery(q url.Values) (*Grant, Reason) {
	noteID, ownerID, fileID, exp := q.Get("noteId"), q.Get("ownerId"), q.Get("fileId"), q.Get("exp")
	ok, reason := s.Verify(noteID, ownerID, fileID, exp, q.Get("sig"))
	if !ok {
		return nil, reason
	}

	expAt, _ := strconv.ParseInt(exp, 10, 64)
	return &Grant{NoteID: noteID, OwnerID: ownerID, FileID: fileID, Exp: expAt}, ReasonNone
}
