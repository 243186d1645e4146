// Package secret generates and hashes instance login credentials.
package secret

import (
	"context"
	"crypto/rand"
	"math/big"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// PasswordLength is the length of auto-generated passwords.
const PasswordLength = 16

// Charset is the set of characters auto-generated passwords are drawn from:
// upper, lower, digits, and a restricted symbol set that survives quoting in
// shell examples and cloud-init YAML.
const Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789" +
	"!@#%^&*-_=+"

// GeneratePassword produces a random password of PasswordLength characters
// drawn from Charset using crypto/rand.
func GeneratePassword() (string, error) {
	var sb strings.Builder
	limit := big.NewInt(int64(len(Charset)))
	for i := 0; i < PasswordLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errors.Errorf("reading random bytes: %w", err)
		}
		sb.WriteByte(Charset[n.Int64()])
	}
	return sb.String(), nil
}

// Hasher hashes plaintext passwords into SHA-512 crypt form via the mkpasswd
// utility, the format cloud-init expects in a user's passwd field.
type Hasher struct {
	MkpasswdPath string
}

// NewHasher locates the mkpasswd binary on PATH.
func NewHasher() (*Hasher, error) {
	path, err := exec.LookPath("mkpasswd")
	if err != nil {
		return nil, errors.Errorf("finding mkpasswd executable: %w", err)
	}
	return &Hasher{MkpasswdPath: path}, nil
}

// Hash returns the salted SHA-512 crypt hash of password. The plaintext is
// fed over stdin so it never appears in the process table.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("mkpasswd", h.MkpasswdPath).Msg("Hashing password")

	cmd := exec.CommandContext(ctx, h.MkpasswdPath, "--method=sha-512", "--stdin")
	cmd.Stdin = strings.NewReader(password + "\n")

	output, err := cmd.Output()
	if err != nil {
		return "", errors.Errorf("running mkpasswd: %w", err)
	}

	hash := strings.TrimSpace(string(output))
	if hash == "" {
		return "", errors.Errorf("mkpasswd produced no output")
	}
	return hash, nil
}
