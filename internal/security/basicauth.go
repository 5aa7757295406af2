package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
)

// BasicAuth guards operator routes with a single user whose password is stored as an argon2id
// hash in PHC format.
type BasicAuth struct {
	User   string
	Hash   string
	Realm  string
	Logger zerolog.Logger
}

// Enabled reports whether credentials are configured.
func (b BasicAuth) Enabled() bool {
	return strings.TrimSpace(b.User) != "" && strings.TrimSpace(b.Hash) != ""
}

// Middleware rejects requests without matching credentials. Unconfigured guards deny everything.
func (b BasicAuth) Middleware(next http.Handler) http.Handler {
	realm := b.Realm
	if realm == "" {
		realm = "storefront-admin"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.Enabled() {
			common.JSONError(w, http.StatusForbidden, "ADMIN_DISABLED", "admin access is not configured", nil)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !b.check(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithActor(r.Context(), user)))
	})
}

func (b BasicAuth) check(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(b.User)) == 1
	match, err := argon2id.ComparePasswordAndHash(pass, b.Hash)
	if err != nil {
		b.Logger.Error().Err(err).Msg("admin password hash unreadable")
		return false
	}
	return userOK && match
}

// HashPassword produces a PHC string suitable for ADMIN_BASIC_AUTH_HASH.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}
