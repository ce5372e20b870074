// Package route resolves a canonical request to exactly one (backend, model)
// pair.
//
// DESIGN: Selection is a pure function of the request and the static
// configuration. There is no fallback: an unknown alias, backend, or model is
// an invalid_request, never a scan of alternative backends.
package route

import (
	"strings"

	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// Selection is the router's output: one backend profile and the model to use.
type Selection struct {
	Backend *config.BackendProfile
	Model   string
}

// Router resolves backend hints against immutable configuration.
type Router struct {
	cfg *config.Config
}

// New creates a router over loaded configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Select resolves req to a (backend, model) pair.
//
// Resolution order: a "backend/model" direct reference wins; otherwise the
// hint is treated as an alias; an empty hint means the default alias. A model
// override replaces the routed model and must be owned by the backend.
func (r *Router) Select(req *canonical.Request) (Selection, error) {
	hint := strings.TrimSpace(req.BackendHint)

	var backendID, model string
	switch {
	case strings.Contains(hint, "/"):
		parts := strings.SplitN(hint, "/", 2)
		backendID, model = parts[0], parts[1]
		if backendID == "" || model == "" {
			return Selection{}, gwerr.Newf(gwerr.KindInvalidRequest,
				"malformed backend reference %q", hint)
		}
	default:
		alias := hint
		if alias == "" {
			alias = config.DefaultAlias
		}
		a, ok := r.cfg.Aliases[alias]
		if !ok {
			return Selection{}, gwerr.Newf(gwerr.KindInvalidRequest, "unknown alias %q", alias)
		}
		backendID, model = a.Backend, a.Model
	}

	if req.ModelOverride != "" {
		model = req.ModelOverride
	}

	profile, ok := r.cfg.Backends[backendID]
	if !ok {
		return Selection{}, gwerr.Newf(gwerr.KindInvalidRequest, "unknown backend %q", backendID)
	}
	if !profile.HasModel(model) {
		return Selection{}, gwerr.Newf(gwerr.KindInvalidRequest,
			"backend %q does not serve model %q", backendID, model)
	}
	return Selection{Backend: profile, Model: model}, nil
}
