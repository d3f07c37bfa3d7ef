package util

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const jwtSecretSize = 32

// LoadJWTSecretKey reads the HS256 signing key at path. A missing file is
// created with a random key so tokens survive restarts of the service.
func LoadJWTSecretKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return createJWTSecretKey(path)
	case err != nil:
		return nil, fmt.Errorf("failed to read JWT secret key: %w", err)
	case len(key) == 0:
		return nil, fmt.Errorf("JWT secret key at %s is empty", path)
	}
	return key, nil
}

func createJWTSecretKey(path string) ([]byte, error) {
	key := make([]byte, jwtSecretSize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random JWT secret key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create JWT secret directory: %w", err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write JWT secret key: %w", err)
	}
	return key, nil
}
