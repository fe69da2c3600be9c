// AngelaMos | 2026
// jwks.go

package keys

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// JWKS publishes the public half of every key that currently verifies.
func (m *Manager) JWKS() (jwk.Set, error) {
	set := jwk.NewSet()
	for _, k := range m.VerificationKeys() {
		if err := set.AddKey(k.Public); err != nil {
			return nil, fmt.Errorf("add key %s to set: %w", k.ID, err)
		}
	}
	return set, nil
}

func (m *Manager) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := m.JWKS()
		if err != nil {
			m.logger.ErrorContext(r.Context(), "build jwks", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		// max-age must stay below jwt.rotation_grace.
		w.Header().Set("Cache-Control", "public, max-age=300")

		if err := json.NewEncoder(w).Encode(set); err != nil {
			m.logger.ErrorContext(r.Context(), "encode jwks", "error", err)
		}
	}
}
