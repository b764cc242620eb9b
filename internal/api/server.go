package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pawtrait/backend/internal/catalog"
	"github.com/pawtrait/backend/internal/generation"
	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/payments"
	"github.com/pawtrait/backend/internal/prompt"
	"github.com/pawtrait/backend/internal/ratelimit"
)

type contextKey string

const userContextKey contextKey = "user"

// UserSource resolves API bearer tokens to users.
type UserSource interface {
	FindByAPIToken(ctx context.Context, token string) (*models.User, error)
}

// PlanLister backs the public plan listing.
type PlanLister interface {
	ListActive(ctx context.Context) ([]models.Plan, error)
}

// RequestReader is used for the ownership check on status queries.
type RequestReader interface {
	GetByID(ctx context.Context, id string) (*models.GenerationRequest, error)
}

type Server struct {
	addr       string
	log        *slog.Logger
	users      UserSource
	plans      PlanLister
	requests   RequestReader
	generator  *generation.Service
	poller     *generation.Poller
	checkout   *payments.Checkout
	reconciler *payments.Reconciler
	router     *chi.Mux
}

func NewServer(addr string, log *slog.Logger, users UserSource, plans PlanLister, requests RequestReader, generator *generation.Service, poller *generation.Poller, checkout *payments.Checkout, reconciler *payments.Reconciler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:       addr,
		log:        log,
		users:      users,
		plans:      plans,
		requests:   requests,
		generator:  generator,
		poller:     poller,
		checkout:   checkout,
		reconciler: reconciler,
		router:     r,
	}

	r.Post("/webhook/payments", s.handlePaymentWebhook)
	r.Get("/api/plans", s.handleListPlans)
	r.Get("/api/catalog", s.handleCatalog)
	r.Group(func(protected chi.Router) {
		protected.Use(s.authMiddleware())
		protected.Post("/api/checkout", s.handleCheckout)
		protected.Post("/api/generations", s.handleStartGeneration)
		protected.Get("/api/generations/{id}", s.handleGenerationStatus)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handlePaymentWebhook feeds verified provider events to the reconciler.
// Processed, ignored and unresolvable events all answer 200 so the provider
// does not retry-storm; only a bad signature is a 4xx.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}

	err = s.reconciler.Handle(r.Context(), body, r.Header.Get("X-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrSignatureInvalid) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		s.log.Error("webhook reconciliation error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.ListActive(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plans)
}

type catalogEntry struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

type catalogResponse struct {
	Styles      []catalogEntry `json:"styles"`
	Backgrounds []catalogEntry `json:"backgrounds"`
	Accessories []catalogEntry `json:"accessories"`
	CustomID    string         `json:"custom_id"`
}

// handleCatalog lists the selectable style/background/accessory ids so a
// client never has to hard-code them.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{CustomID: catalog.CustomID}
	for _, style := range catalog.Styles() {
		resp.Styles = append(resp.Styles, catalogEntry{ID: style.ID, Prompt: style.Prompt})
	}
	for _, bg := range catalog.Backgrounds() {
		resp.Backgrounds = append(resp.Backgrounds, catalogEntry{ID: bg.ID, Prompt: bg.Prompt})
	}
	for _, acc := range catalog.Accessories() {
		resp.Accessories = append(resp.Accessories, catalogEntry{ID: acc.ID, Prompt: acc.Prompt})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type checkoutRequest struct {
	PlanID int64 `json:"plan_id"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.PlanID <= 0 {
		http.Error(w, "plan_id required", http.StatusBadRequest)
		return
	}

	order, err := s.checkout.CreateOrder(r.Context(), user.ID, req.PlanID)
	if err != nil {
		if errors.Is(err, payments.ErrPlanUnavailable) {
			http.Error(w, "plan unavailable", http.StatusBadRequest)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, order)
}

type startGenerationRequest struct {
	Selections models.UserSelections `json:"selections"`
	ImageCount int                   `json:"image_count"`
	PhotoURLs  []string              `json:"photo_urls"`
}

type startGenerationResponse struct {
	GenerationID     string `json:"generation_id"`
	Status           string `json:"status"`
	JobCount         int    `json:"job_count"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}

func (s *Server) handleStartGeneration(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var req startGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	result, err := s.generator.Start(r.Context(), generation.StartInput{
		UserID:     user.ID,
		Selections: req.Selections,
		ImageCount: req.ImageCount,
		PhotoURLs:  req.PhotoURLs,
	})
	if err != nil {
		switch {
		case errors.Is(err, prompt.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ratelimit.ErrRateLimited):
			http.Error(w, "generation capacity exhausted, retry shortly", http.StatusTooManyRequests)
		case errors.Is(err, generation.ErrNoActiveSubscription):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, generation.ErrNoJobsCreated):
			http.Error(w, "generation provider unavailable", http.StatusBadGateway)
		default:
			s.internalError(w, err)
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, startGenerationResponse{
		GenerationID:     result.RequestID,
		Status:           string(result.Status),
		JobCount:         result.JobCount,
		EstimatedSeconds: result.EstimatedSeconds,
	})
}

type generationStatusResponse struct {
	Status   string   `json:"status"`
	Images   []string `json:"images,omitempty"`
	Progress int      `json:"progress"`
	Error    string   `json:"error,omitempty"`
}

func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id := chi.URLParam(r, "id")

	req, err := s.requests.GetByID(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if req == nil || req.UserID != user.ID {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}

	result, err := s.poller.CheckOnce(r.Context(), id)
	if err != nil {
		if errors.Is(err, generation.ErrRequestNotFound) {
			http.Error(w, "generation not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, generationStatusResponse{
		Status:   string(result.Status),
		Images:   result.Images,
		Progress: result.ProgressPercent,
		Error:    result.ErrorMessage,
	})
}

func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || token == r.Header.Get("Authorization") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			user, err := s.users.FindByAPIToken(r.Context(), token)
			if err != nil {
				s.internalError(w, err)
				return
			}
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
		})
	}
}

func userFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
