package routes

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/gate-services/internal/monitorsvc/handlers"
)

var tokenAuth *jwtauth.JWTAuth

func SetRoutes(r chi.Router, h *handlers.Handler) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", h.HandleWebSocket)
		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/health", h.HealthHandler)
			r.Get("/gateways", h.GatewaysHandler)
		})
	})
}

func InitAuth(secret string) {
	tokenAuth = jwtauth.New("HS256", []byte(secret), nil)

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, _ := tokenAuth.Encode(map[string]interface{}{
		"service_id": "monitor",
		"exp":        expirationTime,
	})

	log.Debugf("DEBUG: JWT for testing expires soon : %s", tokenString)
}
