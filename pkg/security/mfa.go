package security

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPSkew is the clock-skew tolerance in 30-second steps on either side
// of the current step.
const TOTPSkew = 2

// GenerateMFASecret generates a random 32-byte Base32 secret.
// Authenticator apps require Base32, not Base64.
func GenerateMFASecret() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret), nil
}

// ProvisioningURI returns the otpauth URI for rendering as a scannable code.
func ProvisioningURI(issuer, email, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer), url.PathEscape(email), secret, url.QueryEscape(issuer))
}

// VerifyTOTP checks a 6-digit code against the secret at the given instant,
// tolerating ±TOTPSkew time steps.
func VerifyTOTP(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      TOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const backupCodeLength = 10

// GenerateBackupCodes returns n single-use uppercase alphanumeric codes.
// Ambiguous characters (0/O, 1/I) are excluded from the alphabet.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	max := big.NewInt(int64(len(backupCodeAlphabet)))

	for i := 0; i < n; i++ {
		var b strings.Builder
		for j := 0; j < backupCodeLength; j++ {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			b.WriteByte(backupCodeAlphabet[idx.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// NormalizeBackupCode uppercases and trims a submitted code so the match is
// case-insensitive.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
