package gateway

import (
	"net/http"
	"strings"
)

// identity is the caller information the collaborator layer is expected to
// have already resolved (spec §11: session-key resolution upstream of the
// core, e.g. via OIDC, is a collaborator-layer concern out of the core's
// scope). The gateway reads it off plain headers so handlers never need to
// know how the caller authenticated.
type identity struct {
	userID     string
	sessionKey string
	isAdmin    bool
}

func identityFromRequest(r *http.Request, adminKeys []string) identity {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	sessionKey := strings.TrimSpace(r.Header.Get("X-Session-ID"))
	if sessionKey == "" {
		sessionKey = userID
	}
	return identity{
		userID:     userID,
		sessionKey: sessionKey,
		isAdmin:    isAdminKey(adminKeys, userID) || isAdminKey(adminKeys, sessionKey),
	}
}

func isAdminKey(adminKeys []string, candidate string) bool {
	if candidate == "" {
		return false
	}
	for _, k := range adminKeys {
		if strings.EqualFold(strings.TrimSpace(k), candidate) {
			return true
		}
	}
	return false
}
