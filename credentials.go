package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// BridgeCredentials holds the API credentials for a paired Hue bridge.
type BridgeCredentials struct {
	Username  string `json:"username"`
	Clientkey string `json:"clientkey"`
	IP        string `json:"ip,omitempty"` // address seen when pairing
}

func credentialsPath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hue.json"), nil
}

func readAllCredentials(path string) (map[string]BridgeCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var creds map[string]BridgeCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return creds, nil
}

func writeAllCredentials(path string, all map[string]BridgeCredentials) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadCredentials loads the stored credentials for the given bridge ID.
// Returns false with no error if no credentials are found.
func LoadCredentials(bridgeID string) (BridgeCredentials, bool, error) {
	path, err := credentialsPath()
	if err != nil {
		return BridgeCredentials{}, false, err
	}

	creds, err := readAllCredentials(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BridgeCredentials{}, false, nil
		}
		return BridgeCredentials{}, false, err
	}

	bc, ok := creds[bridgeID]
	return bc, ok, nil
}

// LoadCredentialsByIP finds credentials recorded for a bridge address, for
// setups that configure hue.bridge_ip instead of using discovery.
func LoadCredentialsByIP(ip string) (string, BridgeCredentials, bool, error) {
	path, err := credentialsPath()
	if err != nil {
		return "", BridgeCredentials{}, false, err
	}

	creds, err := readAllCredentials(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", BridgeCredentials{}, false, nil
		}
		return "", BridgeCredentials{}, false, err
	}

	for id, bc := range creds {
		if bc.IP == ip {
			return id, bc, true, nil
		}
	}
	return "", BridgeCredentials{}, false, nil
}

// SaveCredentials persists the credentials for the given bridge ID.
// Creates the data directory with 0700 if needed.
func SaveCredentials(bridgeID string, creds BridgeCredentials) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	all, err := readAllCredentials(path)
	if err != nil || all == nil {
		all = make(map[string]BridgeCredentials)
	}

	all[bridgeID] = creds
	return writeAllCredentials(path, all)
}

// DeleteCredentials removes the stored credentials for the given bridge ID.
func DeleteCredentials(bridgeID string) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}

	all, err := readAllCredentials(path)
	if err != nil {
		return err
	}

	delete(all, bridgeID)
	return writeAllCredentials(path, all)
}
