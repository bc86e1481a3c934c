// Package redis keeps statistics, the pause flag, runtime configuration
// overrides and withdrawal locks in Redis via go-redis/v9.
package redis

import "strings"

const defaultPrefix = "crossarb"

// Keys builds namespaced Redis keys.
type Keys struct {
	prefix string
}

// NewKeys returns a key builder. An empty prefix uses "crossarb".
func NewKeys(prefix string) Keys {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return Keys{prefix: prefix}
}

// Stats is the statistics hash.
func (k Keys) Stats() string { return k.prefix + ":stats" }

// Paused is set while trading is paused.
func (k Keys) Paused() string { return k.prefix + ":paused" }

// Config is the hash of runtime trading overrides.
func (k Keys) Config() string { return k.prefix + ":config" }

// Lock namespaces a lock name.
func (k Keys) Lock(name string) string { return k.prefix + ":lock:" + name }
