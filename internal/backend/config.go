// Package backend implements the platform API the session kit consumes:
// username/password login and registration issuing HS256 access and
// refresh tokens, header-based refresh, profile lookup, best-effort
// logout with refresh revocation, file upload, and the chat endpoint.
// It exists for local runs and integration tests; production deployments
// point the gateway at the real platform.
package backend

import "time"

// ServerConfig configures token issuance. Access and refresh tokens are
// signed with separate secrets so one cannot stand in for the other.
type ServerConfig struct {
	AccessSigningKey  []byte
	RefreshSigningKey []byte
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
}
