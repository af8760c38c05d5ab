// Package storage is the key/value layer behind the upstream response cache.
// Entries live either in the global namespace or in a namespace scoped to one
// seller credential. Credential namespaces are keyed by a SHA-256 digest so
// the raw credential never reaches a storage backend.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Storage defines the primary interface for namespaced data storage.
type Storage interface {
	// Get retrieves data for a specific key within the given namespace.
	// Returns a nil StorageItem if the key doesn't exist or has expired.
	// Returns an error only for storage system failures.
	Get(ctx context.Context, key string, opts ...Option) (*StorageItem, error)

	// Set stores data for a specific key within the given namespace.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data within the given namespace.
	// If no key is specified via WithKey, the entire namespace is removed.
	Delete(ctx context.Context, opts ...Option) error

	// Close releases backend resources.
	Close() error
}

// StorageItem represents a stored piece of data with metadata.
type StorageItem struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired checks if the item has expired.
func (si *StorageItem) IsExpired() bool {
	return si.ExpiresAt != nil && time.Now().After(*si.ExpiresAt)
}

// Option configures storage operations.
type Option func(*Options)

// Options contains configuration for storage operations.
type Options struct {
	Namespace Namespace      // nil = global
	Key       *string        // Delete only
	TTL       *time.Duration // Set only
}

// ParseOptions applies opts to a fresh Options value.
func ParseOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Namespace represents a storage namespace. Only types in this package
// implement it.
type Namespace interface {
	namespace()
	// Prefix is the backend-independent key prefix for the namespace.
	Prefix() string
}

// CredentialNamespace scopes entries to one credential digest.
type CredentialNamespace struct {
	Digest string
}

func (CredentialNamespace) namespace() {}

// Prefix implements Namespace.
func (n CredentialNamespace) Prefix() string { return "cred:" + n.Digest + ":" }

// CredentialDigest returns the hex SHA-256 digest of a credential.
func CredentialDigest(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// WithCredential scopes the operation to the namespace of credential. Only
// the digest is retained.
func WithCredential(credential string) Option {
	digest := CredentialDigest(credential)
	return func(opts *Options) {
		opts.Namespace = CredentialNamespace{Digest: digest}
	}
}

// WithKey specifies a specific key for Delete operations.
func WithKey(key string) Option {
	return func(opts *Options) {
		opts.Key = &key
	}
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

// BuildKey joins the namespace prefix and key.
func BuildKey(ns Namespace, key string) string {
	if ns == nil {
		return "global:" + key
	}
	return ns.Prefix() + key
}

// NamespacePrefix returns the prefix shared by every key in ns.
func NamespacePrefix(ns Namespace) string {
	if ns == nil {
		return "global:"
	}
	return ns.Prefix()
}

var (
	// ErrInvalidOptions is returned when incompatible options are provided.
	ErrInvalidOptions = errors.New("storage: invalid option combination")
)
