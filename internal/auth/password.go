package auth

import (
	"bufio"
	"crypto/rand"
	_ "embed"
	"fmt"
	"math/big"
	"os"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

//go:embed common_passwords.txt
var embeddedCommonPasswords string

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GeneratePassword returns a random alphanumeric password of length n.
func GeneratePassword(n int) (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out), nil
}

// PasswordValidator applies the password policy.
type PasswordValidator struct {
	common map[string]struct{}
}

// NewPasswordValidator loads the common-password list. An empty path uses the built-in list.
func NewPasswordValidator(commonPasswordsPath string) (*PasswordValidator, error) {
	content := embeddedCommonPasswords
	if commonPasswordsPath != "" {
		b, err := os.ReadFile(commonPasswordsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read common passwords: %w", err)
		}
		content = string(b)
	}

	v := &PasswordValidator{common: make(map[string]struct{})}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		if line := strings.ToLower(strings.TrimSpace(scanner.Text())); line != "" {
			v.common[line] = struct{}{}
		}
	}
	return v, nil
}

// Validate returns the policy violations for password; email is used for the similarity check.
func (v *PasswordValidator) Validate(password, email string) []string {
	var problems []string

	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("This password is too short. It must contain at least %d characters.", MinPasswordLength))
	}
	if _, ok := v.common[strings.ToLower(strings.TrimSpace(password))]; ok {
		problems = append(problems, "This password is too common.")
	}
	if isAllDigits(password) {
		problems = append(problems, "This password is entirely numeric.")
	}
	if tooSimilar(password, email) {
		problems = append(problems, "The password is too similar to the email address.")
	}

	return problems
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// tooSimilar flags passwords that contain, or are contained in, the email's local part.
func tooSimilar(password, email string) bool {
	local := strings.ToLower(email)
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	p := strings.ToLower(password)
	if len(local) < 3 || len(p) < 3 {
		return false
	}
	return strings.Contains(p, local) || strings.Contains(local, p)
}
