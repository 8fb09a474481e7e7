package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/service"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
)

// Presence answers whether a card is inside.
type Presence interface {
	IsInside(ctx context.Context, cardID string) (bool, error)
}

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	port      string

	cards    *service.CardService
	presence Presence
	reports  *service.ReportService
	audit    store.Audit
}

func NewHandler(port string, cards *service.CardService, presence Presence, reports *service.ReportService, audit store.Audit) *Handler {
	return &Handler{
		port:     port,
		cards:    cards,
		presence: presence,
		reports:  reports,
		audit:    audit,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Error encoding response %s", err)
	}
}

func (h *Handler) ok(w http.ResponseWriter, msg string, data interface{}) {
	h.CreateResponse(w, Response{Message: msg, Code: http.StatusOK, Data: data})
}

// fail maps service errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	var se *store.StoreError
	switch {
	case errors.Is(err, service.ErrInvalidCardID), errors.Is(err, service.ErrUnknownPeriod):
		code = http.StatusBadRequest
	case errors.Is(err, store.ErrCardExists):
		code = http.StatusConflict
	case errors.Is(err, store.ErrCardNotFound):
		code = http.StatusNotFound
	case errors.As(err, &se):
		code = http.StatusServiceUnavailable
	}

	if code >= 500 {
		log.WithField("path", r.URL.Path).Errorf("request failed: %v", err)
	}
	h.CreateResponse(w, Response{Message: http.StatusText(code), Code: code, Error: err.Error()})
}

func cardParam(r *http.Request) string {
	raw := chi.URLParam(r, "cardID")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "gate service is running at port "+h.port, nil)
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cards == nil {
		cards = []models.RegisteredCard{}
	}
	h.ok(w, "registered cards", cards)
}

func (h *Handler) RegisterCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID string `json:"card_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Message: "Bad Request", Code: http.StatusBadRequest, Error: "invalid JSON body"})
		return
	}

	card, err := h.cards.Register(r.Context(), req.CardID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	log.WithField("card_id", card.CardID).Info("card registered")
	h.CreateResponse(w, Response{Message: "card registered", Code: http.StatusCreated, Data: card})
}

func (h *Handler) UnregisterCard(w http.ResponseWriter, r *http.Request) {
	id := cardParam(r)
	if err := h.cards.Unregister(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	log.WithField("card_id", id).Info("card unregistered")
	h.ok(w, "card unregistered", map[string]string{"card_id": id})
}

func (h *Handler) CardPresence(w http.ResponseWriter, r *http.Request) {
	id := cardParam(r)
	inside, err := h.presence.IsInside(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "presence", map[string]interface{}{"card_id": id, "inside": inside})
}

func (h *Handler) CardWorkTime(w http.ResponseWriter, r *http.Request) {
	wt, err := h.reports.WorkTime(r.Context(), cardParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "work time today", wt)
}

func (h *Handler) CardSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.cards.History(r.Context(), cardParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	h.ok(w, "card sessions", list)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.cards.Sessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	h.ok(w, "sessions", list)
}

// Stats serves one period, or all of them when period is omitted.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	periods := service.Periods
	if q := r.URL.Query().Get("period"); q != "" {
		p, err := service.ParsePeriod(q)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		periods = []service.Period{p}
	}

	out := make([]*models.PeriodStats, 0, len(periods))
	for _, p := range periods {
		st, err := h.reports.Stats(r.Context(), p)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out = append(out, st)
	}
	h.ok(w, "work time statistics", out)
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			h.CreateResponse(w, Response{Message: "Bad Request", Code: http.StatusBadRequest, Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	cardID := r.URL.Query().Get("card_id")
	if id := chi.URLParam(r, "cardID"); id != "" {
		cardID = cardParam(r)
	}

	events, err := h.audit.Recent(r.Context(), cardID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []models.AccessEvent{}
	}
	h.ok(w, "gate decisions", events)
}
