package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
)

// RequireRole lets the request through only when the token carries one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if slices.Contains(roles, claims.Role) {
			c.Next()
			return
		}

		code := response.ErrForbidden
		switch {
		case slices.Equal(roles, []model.Role{model.RoleAdmin}):
			code = response.ErrAdminAccessOnly
		case slices.Contains(roles, model.RoleProctor):
			code = response.ErrProctorOnly
		}
		response.AbortFail(c, http.StatusForbidden, code)
	}
}
