package config

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringService namespaces stored credentials in the OS keychain.
const keyringService = "propscout"

// Credential names for CAPTCHA provider API keys.
const (
	TwoCaptchaCredential  = "2captcha"
	AntiCaptchaCredential = "anticaptcha"
)

// SetProviderKey stores a provider API key in the OS keychain.
func SetProviderKey(provider, key string) error {
	if err := keyring.Set(keyringService, provider, key); err != nil {
		return fmt.Errorf("failed to store %s key: %w", provider, err)
	}
	return nil
}

// ProviderKey reads a provider API key from the OS keychain.
func ProviderKey(provider string) (string, error) {
	return keyring.Get(keyringService, provider)
}

// DeleteProviderKey removes a stored provider API key.
func DeleteProviderKey(provider string) error {
	err := keyring.Delete(keyringService, provider)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete %s key: %w", provider, err)
	}
	return nil
}
