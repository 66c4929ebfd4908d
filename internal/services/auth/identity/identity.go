package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/phantom-chat/phantom/internal/platform/errors"
	"github.com/phantom-chat/phantom/internal/platform/id"
	"github.com/tyler-smith/go-bip39"
)

const (
	// PhraseWords is the word count of a recovery phrase.
	PhraseWords = 12
	// SecretHexLength is the length of a hex-encoded secret key.
	SecretHexLength = ed25519.SeedSize * 2

	phraseEntropyBytes = 16
	derivedIDBytes     = 10
)

var (
	// ErrInvalidRecoveryPhrase indicates a phrase that fails wordlist, length or checksum checks.
	ErrInvalidRecoveryPhrase = apperrors.New(apperrors.CodeIdentityInvalidRecoveryPhrase, "recovery phrase is invalid")
	// ErrInvalidSecretFormat indicates a secret that is not 64 hex characters.
	ErrInvalidSecretFormat = apperrors.New(apperrors.CodeIdentityInvalidSecretFormat, "secret must be 64 hex characters")
)

// Origin tags how a Phantom ID was produced.
type Origin string

const (
	// OriginGenerated marks a random Phantom ID.
	OriginGenerated Origin = "generated"
	// OriginDerived marks a Phantom ID computed from the public key.
	OriginDerived Origin = "derived"
)

// Identity is a keypair and the Phantom ID bound to it.
type Identity struct {
	SecretKey []byte // 32-byte Ed25519 seed
	PublicKey ed25519.PublicKey
	PhantomID string
	Origin    Origin
}

// PrivateKey expands the seed into a signing key.
func (i Identity) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(i.SecretKey)
}

// SecretHex returns the seed as lowercase hex.
func (i Identity) SecretHex() string {
	return hex.EncodeToString(i.SecretKey)
}

// PublicKeyHex returns the public key as lowercase hex.
func (i Identity) PublicKeyHex() string {
	return hex.EncodeToString(i.PublicKey)
}

// Engine mints new identities from an entropy source.
type Engine struct {
	random io.Reader
}

// NewEngine returns an engine backed by crypto/rand.
func NewEngine() *Engine {
	return &Engine{random: rand.Reader}
}

// NewEngineWithRandom returns an engine reading entropy from r.
func NewEngineWithRandom(r io.Reader) *Engine {
	if r == nil {
		r = rand.Reader
	}
	return &Engine{random: r}
}

// Generate returns a random keypair with a random Phantom ID.
func (e *Engine) Generate() (Identity, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(e.random, seed); err != nil {
		return Identity{}, fmt.Errorf("read seed: %w", err)
	}
	phantomID, err := id.NewPhantomIDFromReader(e.random)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		SecretKey: seed,
		PublicKey: publicKeyFromSeed(seed),
		PhantomID: phantomID,
		Origin:    OriginGenerated,
	}, nil
}

// GenerateWithRecoveryPhrase returns a new identity and the phrase that restores it.
func (e *Engine) GenerateWithRecoveryPhrase() (Identity, string, error) {
	entropy := make([]byte, phraseEntropyBytes)
	if _, err := io.ReadFull(e.random, entropy); err != nil {
		return Identity{}, "", fmt.Errorf("read entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return Identity{}, "", fmt.Errorf("encode recovery phrase: %w", err)
	}
	identity, err := Restore(phrase)
	if err != nil {
		return Identity{}, "", err
	}
	return identity, phrase, nil
}

// Restore deterministically reproduces the identity encoded by phrase.
func Restore(phrase string) (Identity, error) {
	normalized, ok := normalizePhrase(phrase)
	if !ok {
		return Identity{}, ErrInvalidRecoveryPhrase
	}
	seed, err := bip39.NewSeedWithErrorChecking(normalized, "")
	if err != nil {
		return Identity{}, ErrInvalidRecoveryPhrase
	}
	return fromSeed(seed[:ed25519.SeedSize]), nil
}

// RestoreFromSecret rebuilds a derived identity from a hex seed.
func RestoreFromSecret(secretHex string) (Identity, error) {
	secretHex = strings.TrimSpace(secretHex)
	if len(secretHex) != SecretHexLength {
		return Identity{}, ErrInvalidSecretFormat
	}
	seed, err := hex.DecodeString(secretHex)
	if err != nil {
		return Identity{}, ErrInvalidSecretFormat
	}
	return fromSeed(seed), nil
}

// ValidatePhrase reports whether Restore would accept phrase.
func ValidatePhrase(phrase string) bool {
	normalized, ok := normalizePhrase(phrase)
	return ok && bip39.IsMnemonicValid(normalized)
}

// ValidateSecret reports whether RestoreFromSecret would accept secretHex.
func ValidateSecret(secretHex string) bool {
	secretHex = strings.TrimSpace(secretHex)
	if len(secretHex) != SecretHexLength {
		return false
	}
	_, err := hex.DecodeString(secretHex)
	return err == nil
}

// DerivePhantomID computes the derived Phantom ID for a public key.
func DerivePhantomID(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return id.PhantomPrefix + hex.EncodeToString(sum[:derivedIDBytes])
}

// normalizePhrase lower-cases phrase and collapses its whitespace. It reports
// false when the word count is wrong.
func normalizePhrase(phrase string) (string, bool) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) != PhraseWords {
		return "", false
	}
	return strings.Join(words, " "), true
}

func fromSeed(seed []byte) Identity {
	secret := make([]byte, ed25519.SeedSize)
	copy(secret, seed)
	publicKey := publicKeyFromSeed(secret)
	return Identity{
		SecretKey: secret,
		PublicKey: publicKey,
		PhantomID: DerivePhantomID(publicKey),
		Origin:    OriginDerived,
	}
}

func publicKeyFromSeed(seed []byte) ed25519.PublicKey {
	return ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
}
