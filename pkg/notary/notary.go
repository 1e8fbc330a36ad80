// Package notary issues independently verifiable receipts for decision
// records. A receipt is an EdDSA-signed JWT whose claims bind the record's
// subject hash, so anyone holding the notary public key can check it
// without access to the ledger.
package notary

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

const (
	// DefaultName is the notary identity stamped on receipts.
	DefaultName = "seasa-notary"
	// Audience scopes receipts to this system.
	Audience = "seasa.audit"

	keyInfo     = "seasa/notary/ed25519/v1"
	minSeedSize = 16
)

var (
	// ErrInvalidReceipt is returned when a receipt fails signature or
	// binding checks.
	ErrInvalidReceipt = errors.New("notary: invalid receipt")
	// ErrSeedTooShort is returned when the configured seed is too short to
	// derive a key from.
	ErrSeedTooShort = errors.New("notary: seed must be at least 16 bytes")
)

// Notarizer is the external notarization capability.
type Notarizer interface {
	Notarize(ctx context.Context, rec *contracts.DecisionRecord) (*contracts.NotarizationReceipt, error)
}

// Func adapts a function to Notarizer.
type Func func(ctx context.Context, rec *contracts.DecisionRecord) (*contracts.NotarizationReceipt, error)

func (f Func) Notarize(ctx context.Context, rec *contracts.DecisionRecord) (*contracts.NotarizationReceipt, error) {
	return f(ctx, rec)
}

// Claims are the JWT claims of a receipt token.
type Claims struct {
	jwt.RegisteredClaims
	SubjectHash string `json:"subject_hash"`
	Criticality string `json:"criticality"`
	Profile     string `json:"profile"`
	Domain      string `json:"domain"`
}

// JWTNotary signs receipts with an Ed25519 key.
type JWTNotary struct {
	name  string
	kid   string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	clock func() time.Time
}

// DeriveKey expands seed into an Ed25519 key with HKDF-SHA256. The same
// seed always yields the same key.
func DeriveKey(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) < minSeedSize {
		return nil, ErrSeedTooShort
	}
	r := hkdf.New(sha256.New, seed, nil, []byte(keyInfo))
	keySeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, keySeed); err != nil {
		return nil, fmt.Errorf("notary: derive key: %w", err)
	}
	return ed25519.NewKeyFromSeed(keySeed), nil
}

// New builds a notary whose key is derived from seed.
func New(name string, seed []byte) (*JWTNotary, error) {
	priv, err := DeriveKey(seed)
	if err != nil {
		return nil, err
	}
	return newFromKey(name, priv), nil
}

// NewEphemeral builds a notary with a random key. Receipts it issues can
// only be verified for the lifetime of the process.
func NewEphemeral(name string) (*JWTNotary, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("notary: generate key: %w", err)
	}
	return newFromKey(name, priv), nil
}

func newFromKey(name string, priv ed25519.PrivateKey) *JWTNotary {
	if name == "" {
		name = DefaultName
	}
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &JWTNotary{
		name:  name,
		kid:   hex.EncodeToString(sum[:8]),
		priv:  priv,
		pub:   pub,
		clock: time.Now,
	}
}

// WithClock overrides the issuance clock.
func (n *JWTNotary) WithClock(clock func() time.Time) *JWTNotary {
	n.clock = clock
	return n
}

func (n *JWTNotary) Name() string                 { return n.name }
func (n *JWTNotary) KeyID() string                { return n.kid }
func (n *JWTNotary) PublicKey() ed25519.PublicKey { return n.pub }

// Notarize signs the record's subject hash and returns the receipt.
func (n *JWTNotary) Notarize(ctx context.Context, rec *contracts.DecisionRecord) (*contracts.NotarizationReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("notary: %w", err)
	}
	subject, err := rec.SubjectHash()
	if err != nil {
		return nil, fmt.Errorf("notary: %w", err)
	}

	now := n.clock().UTC()
	id := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       id,
			Subject:  rec.TransactionID,
			Issuer:   n.name,
			Audience: jwt.ClaimStrings{Audience},
			IssuedAt: jwt.NewNumericDate(now),
		},
		SubjectHash: subject,
		Criticality: rec.Criticality.String(),
		Profile:     string(rec.Profile),
		Domain:      string(rec.Domain),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = n.kid
	signed, err := token.SignedString(n.priv)
	if err != nil {
		return nil, fmt.Errorf("notary: sign: %w", err)
	}

	return &contracts.NotarizationReceipt{
		ReceiptID:   id,
		Notary:      n.name,
		SubjectHash: subject,
		IssuedAt:    now,
		Token:       signed,
	}, nil
}

// Verifier checks receipts against a notary public key.
type Verifier struct {
	pub ed25519.PublicKey
}

// NewVerifier returns a Verifier for pub.
func NewVerifier(pub ed25519.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// Verifier returns a Verifier bound to this notary's public key.
func (n *JWTNotary) Verifier() *Verifier {
	return NewVerifier(n.pub)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.pub, nil
}

// VerifyReceipt checks the token signature and that its claims match the
// receipt fields.
func (v *Verifier) VerifyReceipt(r *contracts.NotarizationReceipt) (*Claims, error) {
	if r == nil || r.Token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrInvalidReceipt)
	}
	token, err := jwt.ParseWithClaims(r.Token, &Claims{}, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(Audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidReceipt
	}
	if claims.ID != r.ReceiptID {
		return nil, fmt.Errorf("%w: receipt id mismatch", ErrInvalidReceipt)
	}
	if claims.SubjectHash != r.SubjectHash {
		return nil, fmt.Errorf("%w: subject hash mismatch", ErrInvalidReceipt)
	}
	return claims, nil
}

// VerifyRecord checks the record's receipt and that it still binds the
// record's current subject hash.
func (v *Verifier) VerifyRecord(rec *contracts.DecisionRecord) error {
	if rec.Notarization == nil {
		return fmt.Errorf("%w: record has no receipt", ErrInvalidReceipt)
	}
	if _, err := v.VerifyReceipt(rec.Notarization); err != nil {
		return err
	}
	subject, err := rec.SubjectHash()
	if err != nil {
		return err
	}
	if subject != rec.Notarization.SubjectHash {
		return fmt.Errorf("%w: record modified after notarization", ErrInvalidReceipt)
	}
	return nil
}
