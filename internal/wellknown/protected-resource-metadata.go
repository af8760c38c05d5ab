// Package wellknown builds the OAuth 2.0 Protected Resource Metadata document
// (RFC 9728) advertised by the SSE transport.
package wellknown

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ProtectedResourcePrefix is the well-known path segment for the metadata
// document.
const ProtectedResourcePrefix = "/.well-known/oauth-protected-resource"

type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JwksURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
	ResourceDocumentation  string   `json:"resource_documentation,omitempty"`
}

// MetadataURL returns the absolute URL of the metadata document for resource:
// the well-known prefix is inserted between the host and the resource path.
func MetadataURL(resource string) (*url.URL, error) {
	u, err := url.Parse(resource)
	if err != nil {
		return nil, fmt.Errorf("parse resource url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("resource url %q must be absolute", resource)
	}
	path := u.Path
	if path == "/" {
		path = ""
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: ProtectedResourcePrefix + path}, nil
}

// Handler serves md as JSON.
func Handler(md ProtectedResourceMetadata) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(md); err != nil {
			http.Error(w, fmt.Sprintf("failed to encode protected resource metadata: %v", err), http.StatusInternalServerError)
		}
	}
}
