// Package session supplies the active connection context: destination
// endpoint, auth material, and remote API version.
package session

// Profile describes a destination endpoint, loaded from a profile file or
// environment.
type Profile struct {
	Name       string `json:"name,omitempty"`
	BaseURL    string `json:"baseUrl"`
	AuthToken  string `json:"authToken,omitempty"`
	APIVersion string `json:"apiVersion"`
}

// Connection is the active connection context handed to request builders and
// handlers. Nil means no active session.
type Connection struct {
	BaseURL    string
	AuthToken  string
	APIVersion string
}

// Provider yields the current connection context, or nil when none exists.
type Provider interface {
	CurrentConnection() *Connection
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() *Connection

// CurrentConnection calls the function.
func (f ProviderFunc) CurrentConnection() *Connection {
	return f()
}
