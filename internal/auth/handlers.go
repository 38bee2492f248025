package auth

import (
	"net/http"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
)

// Handler serves the authenticated account surface.
type Handler struct{}

// Me returns the authenticated subject. Profile data lives with the identity
// provider; the storefront only ever sees the subject claim.
func (Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"userId": userID}})
}
