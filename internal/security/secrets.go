package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinTokenLength is the minimum allowed length for deployment tokens.
	MinTokenLength = 32

	// MinEntropy is the minimum Shannon entropy threshold for tokens.
	MinEntropy = 3.0
)

var forbiddenTokens = map[string]bool{
	"replace-with-secret":      true,
	"deployment-token":         true,
	"topsecret":                true,
	"secret":                   true,
	"password":                 true,
	"changeme":                 true,
	"your-deploy-token-here":   true,
	"min-32-char-deploy-token": true,
}

// ValidateTokenStrength checks that a deployment token is long and random
// enough to serve as a shared secret. Used at startup to warn operators about
// weak on-disk tokens.
func ValidateTokenStrength(tok string) error {
	if len(tok) < MinTokenLength {
		return fmt.Errorf("token too short (minimum %d characters, got %d)", MinTokenLength, len(tok))
	}

	tokLower := strings.ToLower(tok)
	if forbiddenTokens[tokLower] {
		return fmt.Errorf("token appears to be a placeholder value, please use a real secret")
	}

	if strings.Contains(tokLower, "replace") ||
		strings.Contains(tokLower, "changeme") ||
		strings.Contains(tokLower, "password") {
		return fmt.Errorf("token appears to be a placeholder value")
	}

	entropy := calculateEntropy(tok)
	if entropy < MinEntropy {
		return fmt.Errorf("token has insufficient entropy (%.2f < %.2f) - use a more random secret", entropy, MinEntropy)
	}

	return nil
}

// GenerateToken creates a cryptographically secure random token.
// Returns a 48-character base64-encoded string.
func GenerateToken() (string, error) {
	// 36 bytes encode to 48 base64 characters
	bytes := make([]byte, 36)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// calculateEntropy computes the Shannon entropy of a string.
// Returns a value between 0 (completely predictable) and ~8 (maximum entropy
// for byte strings).
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var entropy float64
	length := float64(len(s))

	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}
