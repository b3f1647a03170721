// Package identity tells the local user apart from everyone else.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Kind int

const (
	Other Kind = iota
	Self
)

func (k Kind) String() string {
	if k == Self {
		return "self"
	}
	return "other"
}

// Sender is the author of a received message as the local client sees it.
type Sender struct {
	Kind   Kind
	UserID string
}

// Classify compares by exact string equality: "N/A" is Self only when local is "N/A" too.
func Classify(senderUserID, localUserID string) Sender {
	if senderUserID == localUserID {
		return Sender{Kind: Self, UserID: senderUserID}
	}
	return Sender{Kind: Other, UserID: senderUserID}
}

// LoadOrCreate returns the installation identifier stored at path, creating
// it on first use. An empty path yields a fresh identifier for this process only.
func LoadOrCreate(path string) (string, error) {
	if path == "" {
		return uuid.NewString(), nil
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr != nil {
			return "", fmt.Errorf("corrupted identity file %s: %w", path, parseErr)
		}
		return id, nil
	case !os.IsNotExist(err):
		return "", fmt.Errorf("read identity file: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write identity file: %w", err)
	}
	return id, nil
}
