// Package workspace defines the domain types for workspace lifecycle state.
package workspace

import "strings"

// SystemNamespace is the reserved key-value namespace holding provider bindings.
const SystemNamespace = "system"

const (
	bindingKeyPrefix = "workspace:"
	bindingKeySuffix = ":provider"
)

// Config holds arbitrary per-workspace settings written before the provider
// initializes, so the provider observes them in its scoped store.
type Config map[string]string

// OpenOptions carries the optional inputs to a workspace open request.
type OpenOptions struct {
	// Provider, when it names a registered provider id, is persisted as the
	// workspace's binding and always wins over a previously persisted one.
	Provider string `json:"provider,omitempty"`

	// Config is written into the workspace's settings namespace before
	// provider resolution. Empty means no write.
	Config Config `json:"config,omitempty"`
}

// Binding is the persisted association of a workspace id to the provider id
// managing it.
type Binding struct {
	Workspace string `json:"workspace"`
	Provider  string `json:"provider"`
}

// BindingKey returns the system-namespace key holding the provider binding
// for the given workspace id.
func BindingKey(id string) string {
	return bindingKeyPrefix + id + bindingKeySuffix
}

// IDFromBindingKey extracts the workspace id from a binding key.
// Returns ("", false) when the key is not a binding key.
func IDFromBindingKey(key string) (string, bool) {
	// Prefix and suffix may overlap on short keys ("workspace:provider"
	// satisfies both), so the length check must come first.
	if len(key) < len(bindingKeyPrefix)+len(bindingKeySuffix) {
		return "", false
	}
	if !strings.HasPrefix(key, bindingKeyPrefix) || !strings.HasSuffix(key, bindingKeySuffix) {
		return "", false
	}
	id := key[len(bindingKeyPrefix) : len(key)-len(bindingKeySuffix)]
	if id == "" {
		return "", false
	}
	return id, true
}

// SettingsNamespace returns the key-value namespace holding the workspace's
// own settings. It is also the scoped store view handed to the provider.
func SettingsNamespace(id string) string {
	return "ws:" + id
}
