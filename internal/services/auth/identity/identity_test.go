package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"
)

const validPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateUsesRandomPhantomID(t *testing.T) {
	identity, err := NewEngine().Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if identity.Origin != OriginGenerated {
		t.Fatalf("origin = %q, want %q", identity.Origin, OriginGenerated)
	}
	if len(identity.SecretKey) != ed25519.SeedSize {
		t.Fatalf("secret length = %d, want %d", len(identity.SecretKey), ed25519.SeedSize)
	}
	if !bytes.Equal(identity.PublicKey, ed25519.NewKeyFromSeed(identity.SecretKey).Public().(ed25519.PublicKey)) {
		t.Fatal("public key does not match seed")
	}
	if !strings.HasPrefix(identity.PhantomID, "phantom-") {
		t.Fatalf("phantom id = %q, want phantom- prefix", identity.PhantomID)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(identity.PhantomID, "phantom-")); err != nil {
		t.Fatalf("expected uuid suffix, got %q: %v", identity.PhantomID, err)
	}
}

func TestGenerateProducesDistinctPhantomIDs(t *testing.T) {
	engine := NewEngine()
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		identity, err := engine.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, ok := seen[identity.PhantomID]; ok {
			t.Fatalf("duplicate phantom id %q", identity.PhantomID)
		}
		seen[identity.PhantomID] = struct{}{}
	}
}

func TestGenerateFailsOnShortEntropy(t *testing.T) {
	engine := NewEngineWithRandom(bytes.NewReader(make([]byte, 8)))
	if _, err := engine.Generate(); err == nil {
		t.Fatal("expected error for exhausted entropy")
	}
}

func TestGenerateWithRecoveryPhraseRoundTrips(t *testing.T) {
	identity, phrase, err := NewEngine().GenerateWithRecoveryPhrase()
	if err != nil {
		t.Fatalf("generate with phrase: %v", err)
	}
	if got := len(strings.Fields(phrase)); got != PhraseWords {
		t.Fatalf("phrase words = %d, want %d", got, PhraseWords)
	}
	if identity.Origin != OriginDerived {
		t.Fatalf("origin = %q, want %q", identity.Origin, OriginDerived)
	}

	restored, err := Restore(phrase)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	assertSameIdentity(t, identity, restored)
}

func TestGenerateWithRecoveryPhraseIsDeterministicForEntropy(t *testing.T) {
	entropy := bytes.Repeat([]byte{0x7f}, 16)
	first, phraseA, err := NewEngineWithRandom(bytes.NewReader(entropy)).GenerateWithRecoveryPhrase()
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, phraseB, err := NewEngineWithRandom(bytes.NewReader(entropy)).GenerateWithRecoveryPhrase()
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if phraseA != phraseB {
		t.Fatalf("phrases differ: %q vs %q", phraseA, phraseB)
	}
	assertSameIdentity(t, first, second)
}

func TestRestoreIsIdempotent(t *testing.T) {
	first, err := Restore(validPhrase)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	second, err := Restore(validPhrase)
	if err != nil {
		t.Fatalf("restore again: %v", err)
	}
	assertSameIdentity(t, first, second)
}

func TestRestoreMatchesSeedDerivation(t *testing.T) {
	identity, err := Restore(validPhrase)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	seed := bip39.NewSeed(validPhrase, "")
	if !bytes.Equal(identity.SecretKey, seed[:32]) {
		t.Fatalf("secret = %x, want %x", identity.SecretKey, seed[:32])
	}
	sum := sha256.Sum256(identity.PublicKey)
	want := "phantom-" + hex.EncodeToString(sum[:10])
	if identity.PhantomID != want {
		t.Fatalf("phantom id = %q, want %q", identity.PhantomID, want)
	}
	if len(strings.TrimPrefix(identity.PhantomID, "phantom-")) != 20 {
		t.Fatalf("expected 20 hex chars, got %q", identity.PhantomID)
	}
}

func TestRestoreNormalizesInput(t *testing.T) {
	canonical, err := Restore(validPhrase)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	messy := "  ABANDON abandon\tabandon abandon abandon abandon\nabandon abandon abandon abandon abandon About  "
	restored, err := Restore(messy)
	if err != nil {
		t.Fatalf("restore messy: %v", err)
	}
	assertSameIdentity(t, canonical, restored)
}

func TestRestoreRejectsMalformedPhrases(t *testing.T) {
	cases := map[string]string{
		"bad checksum":   strings.Repeat("abandon ", 12),
		"too few words":  "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		"too many words": validPhrase + " abandon",
		"unknown word":   "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon phantomx",
		"empty":          "",
	}
	for name, phrase := range cases {
		identity, err := Restore(phrase)
		if !errors.Is(err, ErrInvalidRecoveryPhrase) {
			t.Fatalf("%s: expected invalid recovery phrase, got %v", name, err)
		}
		if identity.PhantomID != "" || identity.SecretKey != nil || identity.PublicKey != nil {
			t.Fatalf("%s: expected empty identity, got %+v", name, identity)
		}
		if ValidatePhrase(phrase) {
			t.Fatalf("%s: expected ValidatePhrase to reject", name)
		}
	}
	if !ValidatePhrase(validPhrase) {
		t.Fatal("expected ValidatePhrase to accept valid phrase")
	}
}

func TestRestoreFromSecretMatchesRestore(t *testing.T) {
	fromPhrase, err := Restore(validPhrase)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	fromSecret, err := RestoreFromSecret(fromPhrase.SecretHex())
	if err != nil {
		t.Fatalf("restore from secret: %v", err)
	}
	assertSameIdentity(t, fromPhrase, fromSecret)

	upper, err := RestoreFromSecret(strings.ToUpper(fromPhrase.SecretHex()))
	if err != nil {
		t.Fatalf("restore from upper secret: %v", err)
	}
	assertSameIdentity(t, fromPhrase, upper)
}

func TestRestoreFromSecretRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		strings.Repeat("a", 63),
		strings.Repeat("a", 65),
		strings.Repeat("zz", 32),
	}
	for _, secret := range cases {
		if _, err := RestoreFromSecret(secret); !errors.Is(err, ErrInvalidSecretFormat) {
			t.Fatalf("RestoreFromSecret(%q) = %v, want invalid secret format", secret, err)
		}
		if ValidateSecret(secret) {
			t.Fatalf("ValidateSecret(%q) = true, want false", secret)
		}
	}
	if !ValidateSecret(strings.Repeat("0a", 32)) {
		t.Fatal("expected ValidateSecret to accept 64 hex characters")
	}
}

func TestPrivateKeySigns(t *testing.T) {
	identity, err := Restore(validPhrase)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	message := []byte("phantom")
	signature := ed25519.Sign(identity.PrivateKey(), message)
	if !ed25519.Verify(identity.PublicKey, message, signature) {
		t.Fatal("signature did not verify against public key")
	}
}

func assertSameIdentity(t *testing.T, want Identity, got Identity) {
	t.Helper()
	if !bytes.Equal(want.SecretKey, got.SecretKey) {
		t.Fatalf("secret key mismatch: %x vs %x", want.SecretKey, got.SecretKey)
	}
	if !bytes.Equal(want.PublicKey, got.PublicKey) {
		t.Fatalf("public key mismatch: %x vs %x", want.PublicKey, got.PublicKey)
	}
	if want.PhantomID != got.PhantomID {
		t.Fatalf("phantom id mismatch: %q vs %q", want.PhantomID, got.PhantomID)
	}
	if want.Origin != got.Origin {
		t.Fatalf("origin mismatch: %q vs %q", want.Origin, got.Origin)
	}
}
