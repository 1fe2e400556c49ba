package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infra/logging"

	"github.com/go-chi/chi/v5"
)

const maxOutcomeBody = 64 << 10

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Attempt any    `json:"attempt,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Session(r.Context()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Logout(r.Context()); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Profile(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.svc.PlanViews(r.Context())})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.SelectPlan(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type discountRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: "Invalid request body"})
		return
	}
	v, err := s.svc.ApplyDiscount(r.Context(), chi.URLParam(r, "planID"), req.Code)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handlePurchase answers 202 with the attempt and its checkout URL; the
// outcome arrives later through the checkout routes.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Purchase(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		var attempt any
		if v != nil {
			attempt = v
		}
		s.writeError(w, r, err, attempt)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Attempt(r.Context(), chi.URLParam(r, "planID")))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.svc.Diagnostics()})
}

func (s *Server) handleClearDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.svc.ClearDiagnostics()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.checkout.RenderPage(&buf, chi.URLParam(r, "sessionID")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "This checkout has expired or was already completed.", http.StatusNotFound)
			return
		}
		logging.With(r.Context(), s.log).Error().Err(err).Msg("render checkout page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCheckoutOutcome(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOutcomeBody))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id, outcome := chi.URLParam(r, "sessionID"), strings.ToLower(chi.URLParam(r, "outcome"))
	if err := s.checkout.Resolve(r.Context(), id, outcome, body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, attempt any) {
	status := statusFor(err)
	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		l.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{
		Error:   domain.KindName(err),
		Message: s.svc.UserMessage(err),
		Attempt: attempt,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbiddenRole):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPurchaseInProgress),
		errors.Is(err, domain.ErrDiscountAlreadyApplied),
		errors.Is(err, domain.ErrAlreadySubscribed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStaleAttempt):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidPlan),
		errors.Is(err, domain.ErrInvalidDiscount),
		errors.Is(err, domain.ErrIncompleteProfile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrOrderCreationFailed),
		errors.Is(err, domain.ErrPaymentSessionUnavailable),
		errors.Is(err, domain.ErrVerificationFailed),
		errors.Is(err, domain.ErrProviderPaymentFailed),
		errors.Is(err, domain.ErrBackendUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrRequestRejected):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
