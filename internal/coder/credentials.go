package coder

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Credentials is a freshly generated username/password pair. It is held in
// memory only long enough to create the remote account and notify the
// sender; the password is never persisted.
type Credentials struct {
	Username string
	Password string
}

// Usernames take the form <emotion>-<fish>, e.g. "happy-tuna".
var (
	emotions = []string{
		"brave", "bright", "calm", "cheery", "daring", "eager", "fierce",
		"gentle", "happy", "humble", "jolly", "keen", "lively", "mellow",
		"merry", "nimble", "patient", "plucky", "proud", "quiet", "serene",
		"spry", "sunny", "witty",
	}
	fish = []string{
		"bass", "carp", "cod", "eel", "flounder", "grouper", "guppy",
		"halibut", "herring", "mackerel", "marlin", "minnow", "mullet",
		"perch", "pike", "salmon", "snapper", "sole", "sturgeon", "tarpon",
		"tetra", "trout", "tuna", "wahoo",
	}
)

// GenerateCredentials produces a random human-memorable username and a
// URL-safe random password of roughly eleven characters.
func GenerateCredentials() (Credentials, error) {
	adjective, err := pick(emotions)
	if err != nil {
		return Credentials{}, err
	}
	noun, err := pick(fish)
	if err != nil {
		return Credentials{}, err
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return Credentials{}, fmt.Errorf("generate password: %w", err)
	}

	return Credentials{
		Username: adjective + "-" + noun,
		Password: base64.RawURLEncoding.EncodeToString(buf),
	}, nil
}

func pick(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", fmt.Errorf("pick word: %w", err)
	}
	return words[n.Int64()], nil
}
