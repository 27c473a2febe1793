// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets stores provider API keys in the OS keyring and resolves
// keyring:// references found in configuration.
package secrets

// Service is the keyring service glimpse stores its own keys under.
const Service = "glimpse"

// Store is a secret backend addressed by service and key.
type Store interface {
	Set(service, key, value string) error
	// Get fails with CodeSecretNotFound when the key does not exist.
	Get(service, key string) (string, error)
	// Delete fails with CodeSecretNotFound when the key does not exist.
	Delete(service, key string) error
	// List returns the key names stored under service, in insertion order.
	List(service string) ([]string, error)
}
