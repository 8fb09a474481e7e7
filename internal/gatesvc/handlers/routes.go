package handlers

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/cards", h.ListCards)
			r.Post("/cards", h.RegisterCard)
			r.Route("/cards/{cardID}", func(r chi.Router) {
				r.Delete("/", h.UnregisterCard)
				r.Get("/presence", h.CardPresence)
				r.Get("/worktime", h.CardWorkTime)
				r.Get("/sessions", h.CardSessions)
				r.Get("/events", h.Events)
			})
			r.Get("/sessions", h.ListSessions)
			r.Get("/stats", h.Stats)
			r.Get("/events", h.Events)
		})
	})
}

// InitAuth sets the HS256 key used to verify admin tokens.
func (h *Handler) InitAuth(secret string) {
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, err := h.tokenAuth.Encode(map[string]interface{}{
		"service_id": "gatectl",
		"exp":        expirationTime,
	})
	if err != nil {
		log.Errorf("Error encoding debug token %s", err)
		return
	}

	log.Debugf("DEBUG: admin JWT for testing: %s", tokenString)
}

// IssueToken signs a token for the given subject, valid for ttl.
func (h *Handler) IssueToken(subject string, ttl time.Duration) (string, error) {
	_, token, err := h.tokenAuth.Encode(map[string]interface{}{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
	})
	return token, err
}
