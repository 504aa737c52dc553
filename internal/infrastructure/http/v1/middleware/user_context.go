package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
)

// HeaderUserID carries the authenticated user id set by the upstream gateway.
const HeaderUserID = "X-User-ID"

// ActorSourceHTTP marks actors resolved from request headers.
const ActorSourceHTTP = "http"

// UserContext puts the request actor into the request context.
// The domain layer reads it with appctx.GetActorID; requests without the
// header are recorded as the system actor.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(HeaderUserID)); userID != "" {
			ctx := appctx.WithActor(c.Request.Context(), &appctx.Actor{ID: userID, Source: ActorSourceHTTP})
			c.Request = c.Request.WithContext(ctx)
			c.Set("user_id", userID)
		}
		c.Next()
	}
}
