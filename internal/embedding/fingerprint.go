package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// fingerprintLen is the number of hex characters kept from the file digest.
const fingerprintLen = 16

// fileFingerprint returns a short content digest of the file at path.
func fileFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash model file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen], nil
}
