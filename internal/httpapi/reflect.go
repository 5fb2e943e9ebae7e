// Package httpapi exposes the reflection gate to host systems over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/tracing"
)

const maxBodyBytes = 1 << 20

// Applier is satisfied by *reflection.Gate.
type Applier interface {
	Apply(ctx context.Context, candidate reflection.Candidate, rctx reflection.Context) (string, reflection.Outcome)
}

// ReflectHandler serves POST /v1/reflect.
type ReflectHandler struct {
	gate      Applier
	logger    *zap.Logger
	authToken string
}

func NewReflectHandler(gate Applier, logger *zap.Logger, authToken string) *ReflectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReflectHandler{gate: gate, logger: logger, authToken: authToken}
}

func (h *ReflectHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reflect", h.handleReflect)
}

// ReflectRequest is the body accepted by /v1/reflect.
type ReflectRequest struct {
	RequestID string               `json:"request_id,omitempty"`
	Candidate reflection.Candidate `json:"candidate"`
	Context   reflection.Context   `json:"context"`
}

// ReflectResponse is returned for every well-formed request, whatever the
// review outcome was.
type ReflectResponse struct {
	RequestID     string             `json:"request_id"`
	FinalResponse string             `json:"final_response"`
	Outcome       reflection.Outcome `json:"outcome"`
}

func (h *ReflectHandler) handleReflect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.authToken != "" && !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ReflectRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = r.Header.Get("X-Request-ID")
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx := tracing.ExtractTraceparent(r.Context(), r.Header)
	fields := []zap.Field{zap.String("request_id", requestID)}
	if sc := oteltrace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	start := time.Now()

	ctx = reflection.WithRequestID(ctx, requestID)
	final, outcome := h.gate.Apply(ctx, req.Candidate, req.Context)

	h.logger.Debug("Reflect request served",
		append(fields,
			zap.String("outcome", string(outcome.Kind)),
			zap.Duration("elapsed", time.Since(start)),
		)...,
	)

	w.Header().Set("X-Request-ID", requestID)
	writeJSON(w, http.StatusOK, ReflectResponse{
		RequestID:     requestID,
		FinalResponse: final,
		Outcome:       outcome,
	})
}

func (h *ReflectHandler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
