// Package credentials resolves backend credential references to usable auth
// material. The gateway core consumes the Resolver contract; resolved values
// are never logged or serialized.
package credentials

import (
	"fmt"
	"os"
	"strings"

	"github.com/relaycore/inference-gateway/internal/gwerr"
	"github.com/relaycore/inference-gateway/internal/redact"
)

// Material is resolved auth material handed to an adapter.
type Material struct {
	// AuthHeader is the primary credential header value, e.g. a bearer
	// token or raw API key. The adapter decides the header name per
	// dialect.
	AuthHeader string

	// ExtraHeaders carries dialect-specific additions (versions, beta
	// flags, org ids).
	ExtraHeaders map[string]string
}

// String implements fmt.Stringer so accidental logging shows a mask.
func (m Material) String() string {
	return fmt.Sprintf("credentials.Material{auth: %s, extra: %d}",
		redact.MaskKey(m.AuthHeader), len(m.ExtraHeaders))
}

// MarshalJSON refuses to serialize resolved material.
func (m Material) MarshalJSON() ([]byte, error) {
	return []byte(`"<redacted>"`), nil
}

// Resolver turns a credential reference from a backend profile into Material.
type Resolver interface {
	Resolve(backendID, ref string) (Material, error)
}

// StaticResolver resolves "env:NAME" references from the process environment
// (after any godotenv overlay applied at config load) and treats anything
// else as a literal credential.
type StaticResolver struct{}

// Resolve implements Resolver.
func (StaticResolver) Resolve(backendID, ref string) (Material, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Material{}, gwerr.Newf(gwerr.KindAuthentication,
			"backend %q has no credential reference", backendID).WithBackend(backendID)
	}
	if name, ok := strings.CutPrefix(ref, "env:"); ok {
		v := os.Getenv(name)
		if v == "" {
			return Material{}, gwerr.Newf(gwerr.KindAuthentication,
				"credential env %s is not set for backend %q", name, backendID).WithBackend(backendID)
		}
		return Material{AuthHeader: v}, nil
	}
	return Material{AuthHeader: ref}, nil
}
