package tables

import (
	"crypto/rand"
	"fmt"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
	// Collisions are vanishingly rare at 36^6 codes, but uniqueness is
	// checked, never assumed.
	codeMaxAttempts = 10
)

// generateUniqueCode draws share codes until one does not collide with an
// existing table. exists is consulted once per candidate.
func generateUniqueCode(exists func(code string) (bool, error)) (string, error) {
	buf := make([]byte, codeLength)
	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate share code: %w", err)
		}
		for i := range buf {
			buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(buf)

		taken, err := exists(code)
		if err != nil {
			return "", fmt.Errorf("check share code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unique share code after %d attempts", codeMaxAttempts)
}
