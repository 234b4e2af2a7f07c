// Package httpapi serves the synchronized chain state over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/logger"
)

// Reader is the read side the handlers depend on.
type Reader interface {
	Latest(ctx context.Context) (*domain.ChainState, error)
	Campaign(ctx context.Context, now time.Time) (*domain.Campaign, error)
	TimeUntilEligible(ctx context.Context, lastParticipatedAt *time.Time, now time.Time) (time.Duration, error)
}

// Mux is satisfied by *http.ServeMux and the health server.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// EligibilityResponse is the body of GET /v1/eligibility.
type EligibilityResponse struct {
	Eligible    bool      `json:"eligible"`
	WaitSeconds int64     `json:"wait_seconds"`
	EligibleAt  time.Time `json:"eligible_at"`
}

// Handler exposes the chain state read endpoints.
type Handler struct {
	reader Reader
	log    logger.LoggerInterface
	now    func() time.Time
}

// NewHandler creates the handler set.
func NewHandler(reader Reader, log logger.LoggerInterface) *Handler {
	return &Handler{reader: reader, log: log, now: time.Now}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux Mux) {
	mux.Handle("GET /v1/chain-state", http.HandlerFunc(h.chainState))
	mux.Handle("GET /v1/campaign", http.HandlerFunc(h.campaign))
	mux.Handle("GET /v1/eligibility", http.HandlerFunc(h.eligibility))
}

func (h *Handler) chainState(w http.ResponseWriter, r *http.Request) {
	st, err := h.reader.Latest(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) campaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.reader.Campaign(r.Context(), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) eligibility(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	var last *time.Time
	if raw := r.URL.Query().Get("last_participated_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, r, apperror.Validation(apperror.CodeInvalidFormat, "last_participated_at must be RFC3339"))
			return
		}
		last = &t
	}

	wait, err := h.reader.TimeUntilEligible(r.Context(), last, now)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, EligibilityResponse{
		Eligible:    wait == 0,
		WaitSeconds: int64(math.Ceil(wait.Seconds())),
		EligibleAt:  now.Add(wait).UTC(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.Wrap(err, apperror.CodeInternalError, r.URL.Path)
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		appErr = appErr.WithTraceID(sc.TraceID().String())
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", append([]any{"path", r.URL.Path}, appErr.ToLog()...)...)
	}
	writeJSON(w, appErr.StatusCode, appErr.ToResponse())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
