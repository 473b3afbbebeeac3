package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	NonceSize = 24
	KeySize   = 32

	keyLabel = "facefolio-gallery-v1"
)

// keySource contributes one machine-bound value to the gallery key.
type keySource struct {
	name string
	read func() (string, error)
}

// machineSources bind an encrypted gallery to this host and user.
var machineSources = []keySource{
	{"machine-id", func() (string, error) {
		b, err := os.ReadFile("/etc/machine-id")
		return strings.TrimSpace(string(b)), err
	}},
	{"hostname", os.Hostname},
	{"uid", func() (string, error) { return strconv.Itoa(os.Getuid()), nil }},
}

// machineKey hashes every readable source under keyLabel. Unreadable or
// empty sources are skipped; at least one must remain.
func machineKey(sources []keySource) (*[KeySize]byte, error) {
	h := sha256.New()
	io.WriteString(h, keyLabel)

	used := 0
	for _, src := range sources {
		v, err := src.read()
		if err != nil || v == "" {
			continue
		}
		fmt.Fprintf(h, "\x00%s=%s", src.name, v)
		used++
	}
	if used == 0 {
		return nil, errors.New("no machine identity available")
	}

	var key [KeySize]byte
	copy(key[:], h.Sum(nil))
	return &key, nil
}

// seal encrypts data using NaCl secretbox. The nonce is prepended.
func seal(key *[KeySize]byte, plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// open decrypts data produced by seal.
func open(key *[KeySize]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, key)
	if !ok {
		return nil, ErrEncryption
	}
	return plaintext, nil
}
