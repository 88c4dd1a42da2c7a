package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
)

const (
	// ContextKeyIdentity is the Gin context key for the signed-in candidate.
	ContextKeyIdentity = "identity"
)

// RequireLogin rejects requests while no usable exam API token is stored.
// The token itself is never exposed to the UI.
func RequireLogin(tokens tokenstore.Store, profile string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := tokens.Load(c.Request.Context())
		switch {
		case errors.Is(err, tokenstore.ErrNoToken):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		case errors.Is(err, tokenstore.ErrExpired):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		case err != nil:
			response.AbortFail(c, http.StatusInternalServerError, response.ErrTokenStore)
			return
		}

		identity := tokenstore.Identify(token, profile)
		c.Set(ContextKeyIdentity, &identity)
		c.Next()
	}
}

// GetIdentity retrieves the candidate identity from the Gin context.
func GetIdentity(c *gin.Context) *model.Identity {
	val, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return nil
	}
	identity, ok := val.(*model.Identity)
	if !ok {
		return nil
	}
	return identity
}
