package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Identity is the stable per-device client identity used to tag outgoing
// messages and shared-state entries.
type Identity struct {
	ID string `json:"id"`
}

// DefaultPath returns the identity file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "claspsync", "identity.json"), nil
}

// Load reads the identity stored at path, creating and persisting a fresh
// one when none exists. The id is re-read, never regenerated, for as long
// as the file survives.
func Load(path string) (Identity, error) {
	if id, err := read(path); err == nil {
		return id, nil
	}

	id := Identity{ID: uuid.NewString()}
	if err := save(path, id); err != nil {
		return Identity{}, fmt.Errorf("persist identity: %w", err)
	}
	return id, nil
}

func read(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, err
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, err
	}
	if id.ID == "" {
		return Identity{}, fmt.Errorf("missing client id")
	}
	return id, nil
}

func save(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
