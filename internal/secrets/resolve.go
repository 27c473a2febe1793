// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"
	"maps"
	"slices"
	"strings"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

const scheme = "keyring://"

// IsURI reports whether value is a keyring:// reference.
func IsURI(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// URI builds the keyring:// reference for service and key.
func URI(service, key string) string {
	return scheme + service + "/" + key
}

// ParseURI splits keyring://service/key. The key may contain slashes.
func ParseURI(uri string) (service, key string, err error) {
	if !IsURI(uri) {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns the secret a keyring:// value points at. Other values
// are returned unchanged.
func Resolve(store Store, value string) (string, error) {
	if !IsURI(value) {
		return value, nil
	}
	service, key, err := ParseURI(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, key)
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveAll resolves every keyring:// value in fields in place. Keys name
// the configuration entry each value came from and appear in errors. All
// fields are attempted; failures are joined.
func ResolveAll(store Store, fields map[string]*string) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		ptr := fields[name]
		if ptr == nil || !IsURI(*ptr) {
			continue
		}
		secret, err := Resolve(store, *ptr)
		if err != nil {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeSecretResolveFailure, "%s: %w", name, err))
			continue
		}
		*ptr = secret
	}
	return errors.Join(errs...)
}
