package config

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "tracegraph"

// Secret names stored in the OS keychain.
const (
	SecretJiraToken     = "jira-api-token"
	SecretGitHubToken   = "github-token"
	SecretNeo4jPassword = "neo4j-password"
)

// SetSecret stores a credential in the OS keychain.
func SetSecret(name, value string) error {
	if err := keyring.Set(keyringService, name, value); err != nil {
		return fmt.Errorf("failed to store %s in keychain: %w", name, err)
	}
	return nil
}

// GetSecret retrieves a credential from the OS keychain.
func GetSecret(name string) (string, error) {
	v, err := keyring.Get(keyringService, name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keychain: %w", name, err)
	}
	return v, nil
}

// DeleteSecret removes a credential from the OS keychain.
func DeleteSecret(name string) error {
	if err := keyring.Delete(keyringService, name); err != nil {
		return fmt.Errorf("failed to delete %s from keychain: %w", name, err)
	}
	return nil
}

// KeychainAvailable probes whether an OS keychain backend is usable.
func KeychainAvailable() bool {
	probe := "availability-probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// MaskToken renders a credential for display without revealing it.
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
