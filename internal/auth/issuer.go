package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/orderhub/internal/domain/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingSecret = errors.New("token signing secret is not configured")
	// ErrInvalidToken covers bad signatures, expiry, wrong type and malformed payloads.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenNotFound means the signature was fine but nothing is persisted for it
	// (consumed, revoked or replaced).
	ErrTokenNotFound = errors.New("token not found")
)

// Claims is the signed payload: sub, iat, exp, jti plus the token type.
type Claims struct {
	TokenType token.Type `json:"type"`
	jwt.RegisteredClaims
}

// TokenStore is the persistence the issuer needs from the credential store.
type TokenStore interface {
	// Replace deletes every token of t.Type owned by t.UserID, then inserts t.
	Replace(ctx context.Context, t token.Token) error
	Find(ctx context.Context, userID, value string, typ token.Type) (token.Token, error)
	FindByValue(ctx context.Context, value string, typ token.Type) (token.Token, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserAndType(ctx context.Context, userID string, typ token.Type) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

type TTLs struct {
	Access        time.Duration
	Refresh       time.Duration
	ResetPassword time.Duration
	VerifyEmail   time.Duration
}

type Issued struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type Pair struct {
	Access  Issued `json:"access"`
	Refresh Issued `json:"refresh"`
}

type Issuer struct {
	secret  []byte
	store   TokenStore
	ttls    TTLs
	now     func() time.Time
	onIssue func(token.Type)
}

func NewIssuer(secret string, store TokenStore, ttls TTLs) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	return &Issuer{
		secret: []byte(secret),
		store:  store,
		ttls:   ttls,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// OnIssue registers a hook called after each persisted issue, e.g. a metrics counter.
func (i *Issuer) OnIssue(fn func(token.Type)) *Issuer {
	i.onIssue = fn
	return i
}

// WithClock replaces the time source. Tests only.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) TTL(typ token.Type) time.Duration {
	switch typ {
	case token.TypeAccess:
		return i.ttls.Access
	case token.TypeRefresh:
		return i.ttls.Refresh
	case token.TypeResetPassword:
		return i.ttls.ResetPassword
	case token.TypeVerifyEmail:
		return i.ttls.VerifyEmail
	default:
		return 0
	}
}

// Sign builds the HS256 token. The jti keeps two tokens minted in the same second distinct.
func (i *Issuer) Sign(userID string, typ token.Type, issuedAt, expires time.Time) (string, error) {
	claims := Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse checks signature, algorithm, expiry and structure. Every failure is ErrInvalidToken.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || !claims.TokenType.IsValid() {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Issue mints a token and persists it, replacing any live token of the same
// type for the user. A persist failure is returned: an unstored token could
// never be verified.
func (i *Issuer) Issue(ctx context.Context, userID string, typ token.Type, ttl time.Duration) (Issued, error) {
	if !typ.IsValid() {
		return Issued{}, fmt.Errorf("issue: unknown token type %q", typ)
	}
	if ttl <= 0 {
		ttl = i.TTL(typ)
	}

	now := i.now()
	expires := now.Add(ttl)

	raw, err := i.Sign(userID, typ, now, expires)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", typ, err)
	}

	row := token.Token{
		ID:        uuid.NewString(),
		UserID:    userID,
		Value:     i.Digest(raw),
		Type:      typ,
		Expires:   expires,
		CreatedAt: now,
	}

	if err := i.store.Replace(ctx, row); err != nil {
		return Issued{}, fmt.Errorf("persist %s token: %w", typ, err)
	}

	if i.onIssue != nil {
		i.onIssue(typ)
	}

	return Issued{Token: raw, Expires: expires}, nil
}

// IssuePair issues an access and a refresh token. If the refresh leg fails the
// access token is revoked again and the whole call fails.
func (i *Issuer) IssuePair(ctx context.Context, userID string) (Pair, error) {
	access, err := i.Issue(ctx, userID, token.TypeAccess, i.ttls.Access)
	if err != nil {
		return Pair{}, err
	}

	refresh, err := i.Issue(ctx, userID, token.TypeRefresh, i.ttls.Refresh)
	if err != nil {
		_ = i.store.DeleteByUserAndType(ctx, userID, token.TypeAccess)
		return Pair{}, err
	}

	return Pair{Access: access, Refresh: refresh}, nil
}

// Verify validates raw cryptographically and then requires a persisted record
// for (subject, value, expected type).
func (i *Issuer) Verify(ctx context.Context, raw string, expected token.Type) (token.Token, error) {
	claims, err := i.Parse(raw)
	if err != nil {
		return token.Token{}, err
	}

	if claims.TokenType != expected {
		return token.Token{}, ErrInvalidToken
	}

	row, err := i.store.Find(ctx, claims.Subject, i.Digest(raw), expected)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return token.Token{}, ErrTokenNotFound
		}
		return token.Token{}, fmt.Errorf("lookup %s token: %w", expected, err)
	}

	if row.Expired(i.now()) {
		return token.Token{}, ErrInvalidToken
	}

	return row, nil
}

// Lookup finds a persisted token by its raw value alone, without checking the signature.
func (i *Issuer) Lookup(ctx context.Context, raw string, typ token.Type) (token.Token, error) {
	row, err := i.store.FindByValue(ctx, i.Digest(raw), typ)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return token.Token{}, ErrTokenNotFound
		}
		return token.Token{}, err
	}
	return row, nil
}

// Consume deletes a single persisted token record. ErrTokenNotFound means
// another caller consumed it first.
func (i *Issuer) Consume(ctx context.Context, row token.Token) error {
	if err := i.store.Delete(ctx, row.ID); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return ErrTokenNotFound
		}
		return err
	}
	return nil
}

// RevokeAllOfType is idempotent.
func (i *Issuer) RevokeAllOfType(ctx context.Context, userID string, typ token.Type) error {
	return i.store.DeleteByUserAndType(ctx, userID, typ)
}

func (i *Issuer) RevokeAll(ctx context.Context, userID string) error {
	return i.store.DeleteAllForUser(ctx, userID)
}

// Digest is a deterministic HMAC of the raw token, keyed with the signing secret.
// It is what gets stored, so a leaked tokens table cannot be replayed.
func (i *Issuer) Digest(raw string) string {
	h := hmac.New(sha256.New, i.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
