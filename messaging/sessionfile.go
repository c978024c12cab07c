// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Enovale/matrix-url-previewer-bot/lib/ref"
)

// sessionFileName is the credentials file inside the state directory.
const sessionFileName = "session.json"

// SessionFile is the persisted form of an authenticated session,
// written by the login subcommand and consumed by run. The file is
// created with 0600 permissions — it contains the access token.
type SessionFile struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoadSessionFile reads session.json from the state directory.
func LoadSessionFile(stateDir string) (*SessionFile, error) {
	path := filepath.Join(stateDir, sessionFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading %s: %w", path, err)
	}

	var file SessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("messaging: parsing %s: %w", path, err)
	}
	if file.UserID.IsZero() || file.AccessToken == "" {
		return nil, fmt.Errorf("messaging: %s is missing user_id or access_token", path)
	}
	return &file, nil
}

// Save writes the session file to the state directory, creating the
// directory if needed.
func (f *SessionFile) Save(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("messaging: creating state dir %s: %w", stateDir, err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("messaging: encoding session file: %w", err)
	}

	path := filepath.Join(stateDir, sessionFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("messaging: writing %s: %w", path, err)
	}
	return nil
}

// RemoveSessionFile deletes session.json from the state directory.
// Removing a file that does not exist is not an error.
func RemoveSessionFile(stateDir string) error {
	path := filepath.Join(stateDir, sessionFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("messaging: removing %s: %w", path, err)
	}
	return nil
}
