package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stokado/internal/core/context"
)

// HeaderActor names the caller recorded on every movement. Upstream systems
// and integrations set it; absent means "api" as the anonymous entry path.
const HeaderActor = "X-Actor"

// Actor propagates the calling identity into context so ledger writes and
// audit rows record who moved the stock.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(HeaderActor)
		if actor == "" {
			actor = "api"
		}

		ctx := appctx.WithActor(c.Request.Context(), &appctx.ActorContext{
			Actor: actor,
			Via:   "api",
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
