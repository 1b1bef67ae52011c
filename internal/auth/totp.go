package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/hkdf"

	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/models"
)

const (
	// StepSeconds is the TOTP time step
	StepSeconds = 30
	// CodeDigits is the length of a TOTP code
	CodeDigits = 6
	// BackupCodeDigits is the length of a backup code
	BackupCodeDigits = 8
	// DefaultSkew is the number of steps accepted either side of the current one
	DefaultSkew = 1
)

var ErrInvalidSecret = errors.New("invalid totp secret")

var hotpOpts = hotp.ValidateOpts{
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// NormalizeSecret upper-cases a base32 secret and strips whitespace and padding
func NormalizeSecret(secret string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '=' {
			return -1
		}
		return unicode.ToUpper(r)
	}, secret)
}

// GenerateCode returns the six-digit code for secret at the given time step
func GenerateCode(secret string, step int64) (string, error) {
	s := NormalizeSecret(secret)
	if s == "" || step < 0 {
		return "", ErrInvalidSecret
	}
	code, err := hotp.GenerateCodeCustom(s, uint64(step), hotpOpts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return code, nil
}

// wellFormed reports whether code is exactly n ASCII digits
func wellFormed(code string, n int) bool {
	if len(code) != n {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Verifier checks TOTP codes against the injected clock
type Verifier struct {
	clock clock.Clock
	skew  int64
}

// NewVerifier creates a Verifier accepting DefaultSkew steps either side of now
func NewVerifier(clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.System{}
	}
	return &Verifier{clock: clk, skew: DefaultSkew}
}

// CurrentStep returns the time step for the verifier's clock
func (v *Verifier) CurrentStep() int64 {
	return v.clock.Now().Unix() / StepSeconds
}

// MatchStep returns the time step the code belongs to. Codes that are not six
// digits after trimming fail with ErrMFAInvalidFormat; well-formed codes that
// match no step in the window fail with ErrMFAInvalidCode.
func (v *Verifier) MatchStep(secret, code string) (int64, error) {
	code = strings.TrimSpace(code)
	if !wellFormed(code, CodeDigits) {
		return 0, models.ErrMFAInvalidFormat
	}

	now := v.CurrentStep()
	matched := int64(-1)
	for step := now - v.skew; step <= now+v.skew; step++ {
		want, err := GenerateCode(secret, step)
		if err != nil {
			return 0, err
		}
		// no early exit: all steps in the window are compared
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			matched = step
		}
	}
	if matched < 0 {
		return 0, models.ErrMFAInvalidCode
	}
	return matched, nil
}

// Check verifies code and returns the reason for a failure
func (v *Verifier) Check(secret, code string) error {
	_, err := v.MatchStep(secret, code)
	return err
}

// Verify reports whether code is valid for secret now
func (v *Verifier) Verify(secret, code string) bool {
	return v.Check(secret, code) == nil
}

// ============================================================================
// Backup codes
// ============================================================================

// GenerateBackupCodes returns count random eight-digit codes
func GenerateBackupCodes(count int) ([]string, error) {
	limit := big.NewInt(100_000_000)
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		code := fmt.Sprintf("%08d", n.Int64())
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeBackupCode strips whitespace and dashes users add when typing a code
func NormalizeBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, code)
}

// WellFormedBackupCode reports whether code has the shape of a backup code
func WellFormedBackupCode(code string) bool {
	return wellFormed(NormalizeBackupCode(code), BackupCodeDigits)
}

// BackupCodeHasher produces keyed hashes of backup codes. Plaintext codes are
// never stored.
type BackupCodeHasher struct {
	key []byte
}

// NewBackupCodeHasher derives the hashing key from the master secret
func NewBackupCodeHasher(master []byte) (*BackupCodeHasher, error) {
	key, err := DeriveKey(master, "rampart backup codes", 32)
	if err != nil {
		return nil, err
	}
	return &BackupCodeHasher{key: key}, nil
}

// Hash returns the hex HMAC-SHA256 of the normalized code
func (h *BackupCodeHasher) Hash(code string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(NormalizeBackupCode(code)))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashAll hashes a batch of codes
func (h *BackupCodeHasher) HashAll(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = h.Hash(c)
	}
	return out
}

// Match returns the hash in hashes that code corresponds to. Malformed codes never match.
func (h *BackupCodeHasher) Match(code string, hashes []string) (string, bool) {
	code = NormalizeBackupCode(code)
	if !wellFormed(code, BackupCodeDigits) {
		return "", false
	}
	want := h.Hash(code)
	found := ""
	for _, stored := range hashes {
		if hmac.Equal([]byte(want), []byte(stored)) {
			found = stored
		}
	}
	return found, found != ""
}

// DeriveKey derives an n-byte subkey from the master secret for one purpose
func DeriveKey(master []byte, info string, n int) ([]byte, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("master secret is empty")
	}
	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// ============================================================================
// Enrollment and secrets at rest
// ============================================================================

// TOTPManager handles enrollment and encryption of TOTP secrets
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string // Issuer name for TOTP QR codes
}

// Enrollment is a freshly generated credential ready to show to the user
type Enrollment struct {
	Secret          string // base32, shown once
	URL             string // otpauth:// provisioning URL
	QRCodeDataURL   string
	EncryptedSecret []byte
	Nonce           []byte
}

// NewTOTPManager creates a new TOTP manager
// encryptionKey must be exactly 32 bytes for AES-256
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
	}, nil
}

// Enroll generates a secret for accountName along with its QR code and encrypted form
func (tm *TOTPManager) Enroll(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  20, // 160 bits, the RFC 4226 recommendation
		Period:      StepSeconds,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &Enrollment{
		Secret:          key.Secret(),
		URL:             key.URL(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
		EncryptedSecret: encrypted,
		Nonce:           nonce,
	}, nil
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM
// Returns: (encryptedBytes, nonce, error)
func (tm *TOTPManager) EncryptSecret(secretBytes []byte) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secretBytes, nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret
func (tm *TOTPManager) DecryptSecret(encryptedBytes, nonce []byte) ([]byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("failed to decrypt secret: invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, encryptedBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return plaintext, nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
