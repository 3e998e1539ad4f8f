package dashboard

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Token layout constants.
const (
	uuidSize      = 16 // UUID binary size
	expSize       = 8  // Unix timestamp big-endian
	sigSize       = 16 // Truncated HMAC-SHA256
	payloadSize   = uuidSize + expSize
	fullTokenSize = payloadSize + sigSize
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// TokenService signs and verifies session cookies.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service with the given secret and TTL.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate creates a signed token for a session id and returns its expiry.
func (s *TokenService) Generate(id uuid.UUID) (string, time.Time) {
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)

	// Build payload: session_id (16) | exp (8)
	payload := make([]byte, payloadSize)
	copy(payload[0:uuidSize], id[:])

	//nolint:gosec // Unix timestamps fit safely in uint64 for foreseeable future
	binary.BigEndian.PutUint64(payload[uuidSize:], uint64(expiresAt.Unix()))

	token := make([]byte, fullTokenSize)
	copy(token[0:payloadSize], payload)
	copy(token[payloadSize:], s.sign(payload)[:sigSize])

	return base64.RawURLEncoding.EncodeToString(token), expiresAt
}

// Verify validates a token and returns the session id it carries.
func (s *TokenService) Verify(token string) (uuid.UUID, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(data) != fullTokenSize {
		return uuid.Nil, ErrInvalidToken
	}

	payload := data[0:payloadSize]

	expectedSig := s.sign(payload)
	if !hmac.Equal(data[payloadSize:], expectedSig[:sigSize]) {
		return uuid.Nil, ErrInvalidToken
	}

	var id uuid.UUID

	copy(id[:], payload[0:uuidSize])

	//nolint:gosec // Unix timestamps fit in int64 for foreseeable future
	exp := int64(binary.BigEndian.Uint64(payload[uuidSize:]))

	if s.now().After(time.Unix(exp, 0)) {
		return uuid.Nil, ErrTokenExpired
	}

	return id, nil
}

// sign computes HMAC-SHA256 of the payload.
func (s *TokenService) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)

	return mac.Sum(nil)
}
