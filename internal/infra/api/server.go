// File: internal/infra/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"freelancer-dashboard-billing/internal/domain"
	"freelancer-dashboard-billing/internal/domain/model"
	"freelancer-dashboard-billing/internal/infra/adapters/billing"
	"freelancer-dashboard-billing/internal/infra/logging"
	"freelancer-dashboard-billing/internal/infra/metrics"
	"freelancer-dashboard-billing/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Server exposes the webhook and command endpoints.
type Server struct {
	subUC         usecase.SubscriptionUseCase
	reconciler    usecase.ReconcilerUseCase
	auth          *AuthVerifier
	webhookSecret string
	log           *zerolog.Logger
}

func NewServer(
	subUC usecase.SubscriptionUseCase,
	reconciler usecase.ReconcilerUseCase,
	auth *AuthVerifier,
	webhookSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		subUC:         subUC,
		reconciler:    reconciler,
		auth:          auth,
		webhookSecret: webhookSecret,
		log:           &l,
	}
}

// Register attaches all routes to the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/subscription", s.handleWebhook)
	r.Post("/subscriptions/cancel", s.handleCancel)
	r.Post("/subscriptions/reactivate", s.handleReactivate)
	r.Get("/subscriptions/me", s.handleGet)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, domain.ErrMalformedPayload)
		return
	}

	if err := billing.VerifyWebhookSignature(s.webhookSecret, raw, r.Header.Get("X-Signature")); err != nil {
		metrics.IncWebhookEvent("unknown", "invalid")
		l.Warn().Msg("webhook signature rejected")
		writeError(w, err)
		return
	}

	ev, err := billing.ParseWebhookEvent(raw, time.Now())
	if err != nil {
		metrics.IncWebhookEvent("unknown", "invalid")
		l.Warn().Err(err).Msg("webhook payload rejected")
		writeError(w, err)
		return
	}

	rec, err := s.reconciler.Apply(logging.WithEventID(r.Context(), ev.EventID), ev)
	switch {
	case err == nil:
		metrics.IncWebhookEvent(ev.Name, "applied")
		writeJSON(w, http.StatusOK, statusBody(rec))
	case errors.Is(err, domain.ErrUnsupportedEvent):
		// Events outside the subscription lifecycle are acknowledged so the
		// provider stops retrying them.
		metrics.IncWebhookEvent(ev.Name, "ignored")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		metrics.IncWebhookEvent(ev.Name, "rejected")
		l.Error().Err(err).Str("event_id", ev.EventID).Msg("webhook reconcile failed")
		writeError(w, err)
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.subUC.Cancel)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.subUC.Reactivate)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	rec, err := s.subUC.Get(logging.WithUserID(r.Context(), userID), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordBody(rec))
}

func (s *Server) command(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID string) (*model.SubscriptionRecord, error)) {
	userID, err := s.auth.UserFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	ctx := logging.WithUserID(r.Context(), userID)
	rec, err := op(ctx, userID)
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("command failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody(rec))
}

func statusBody(rec *model.SubscriptionRecord) map[string]string {
	return map[string]string{"status": string(rec.Status)}
}

func recordBody(rec *model.SubscriptionRecord) map[string]any {
	return map[string]any{
		"status":                    string(rec.Status),
		"plan":                      string(rec.Plan),
		"will_cancel_at_period_end": rec.WillCancelAtPeriodEnd,
		"current_period_end":        rec.CurrentPeriodEnd,
		"renews_at":                 rec.RenewsAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto the HTTP taxonomy.
func writeError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		code = http.StatusUnauthorized
	case errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrPreconditionFailed),
		errors.Is(err, domain.ErrNoActiveSubscription),
		errors.Is(err, domain.ErrNothingToReactivate),
		errors.Is(err, domain.ErrProviderRejected):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrReconciliationConflict):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrProviderUnavailable):
		code = http.StatusBadGateway
	default:
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
