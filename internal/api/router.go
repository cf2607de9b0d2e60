package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "authhooks/internal/api/context"
	"authhooks/internal/api/handlers"
	"authhooks/internal/api/middleware"
	"authhooks/internal/pkg/errors"
	"authhooks/internal/platform/auth"
)

type Dependencies struct {
	WebhookHandler *handlers.WebhookHandler
	HealthHandler  *handlers.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Handle))

	authMid := deps.AuthMiddleware
	wh := deps.WebhookHandler

	// Webhook registry
	router.POST("/api/v1/webhooks",
		chain(wh.Create, authMid.Handle, requireRole("admin", "owner")))
	router.GET("/api/v1/webhooks",
		chain(wh.List, authMid.Handle, requireRole("admin", "owner")))
	router.GET("/api/v1/webhooks/:webhook_id",
		chain(wh.Get, authMid.Handle, requireRole("admin", "owner")))
	router.PATCH("/api/v1/webhooks/:webhook_id",
		chain(wh.Update, authMid.Handle, requireRole("admin", "owner")))
	router.DELETE("/api/v1/webhooks/:webhook_id",
		chain(wh.Delete, authMid.Handle, requireRole("admin", "owner")))
	router.POST("/api/v1/webhooks/:webhook_id/secret",
		chain(wh.RegenerateSecret, authMid.Handle, requireRole("admin", "owner")))

	// Delivery history and rollups
	router.GET("/api/v1/webhooks/:webhook_id/deliveries",
		chain(wh.ListDeliveries, authMid.Handle, requireRole("admin", "owner")))
	router.GET("/api/v1/webhooks/:webhook_id/stats",
		chain(wh.GetStats, authMid.Handle, requireRole("admin", "owner")))

	// Test harness
	router.POST("/api/v1/webhooks/:webhook_id/test",
		chain(wh.Test, authMid.Handle, requireRole("admin", "owner")))

	// Event catalog and templates
	router.GET("/api/v1/webhook-events",
		chain(wh.ListEvents, authMid.Handle))
	router.GET("/api/v1/webhook-templates",
		chain(wh.ListTemplates, authMid.Handle))
	router.POST("/api/v1/webhook-templates/:template_id",
		chain(wh.CreateFromTemplate, authMid.Handle, requireRole("admin", "owner")))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
