package store

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idHashLength   = 8
	idMaxAttempts  = 20

	BlobIDPrefix = "bl"
	FileIDPrefix = "fl"
)

// GenerateID returns a new random ID of the form "<prefix>-<base36>".
// It retries on collisions using the provided exists function.
func GenerateID(prefix string, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}

	for i := 0; i < idMaxAttempts; i++ {
		hash, err := randomBase36(idHashLength)
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%s-%s", prefix, hash)
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

// GenerateFileID returns a new file record id using the fl- prefix.
func GenerateFileID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(FileIDPrefix, exists)
}

// GenerateBlobID returns a new blob id using the bl- prefix.
func GenerateBlobID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(BlobIDPrefix, exists)
}

func randomBase36(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = base36Alphabet[int(b[i])%len(base36Alphabet)]
	}
	return string(out), nil
}

// ValidID reports whether id has the given prefix and a well-formed suffix.
func ValidID(prefix, id string) bool {
	if len(id) != len(prefix)+1+idHashLength {
		return false
	}
	if id[:len(prefix)] != prefix || id[len(prefix)] != '-' {
		return false
	}
	for _, c := range id[len(prefix)+1:] {
		if !strings.ContainsRune(base36Alphabet, c) {
			return false
		}
	}
	return true
}
