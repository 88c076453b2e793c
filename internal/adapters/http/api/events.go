package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/uruk/internal/domain/intake"
	"github.com/okian/uruk/internal/domain/registration"
	"github.com/okian/uruk/pkg/logger"
)

// Media types of the push protocol.
const (
	mediaTypeSET  = "application/secevent+jwt"
	mediaTypeJSON = "application/json"
)

// Error codes produced by the handler itself.
const (
	errAuthenticationFailed = "authentication_failed"
	errAccessDenied         = "access_denied"
)

// EventDependencies defines what the events handler needs from the service.
type EventDependencies interface {
	// Lookup resolves the registration of an authenticated client.
	Lookup(clientID string) (*registration.Policy, bool)

	// Process runs a token through the intake pipeline.
	Process(ctx context.Context, raw []byte, policy *registration.Policy) intake.Result
}

// EventsHandler handles pushed security event tokens.
type EventsHandler struct {
	deps         EventDependencies
	auth         Authenticator
	maxBodyBytes int64
	logger       logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, auth Authenticator, maxBodyBytes int64) *EventsHandler {
	return &EventsHandler{
		deps:         deps,
		auth:         auth,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.Get().Named("api"),
	}
}

type errorResponse struct {
	Err         string `json:"err"`
	Description string `json:"description,omitempty"`
}

// HandlePostEvent handles POST requests on the events path.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !isMediaType(r.Header.Get("Content-Type"), mediaTypeSET) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	if !acceptsJSON(r.Header.Values("Accept")) {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}

	ctx := r.Context()
	clientID, err := h.auth.Authenticate(r)
	if err != nil {
		h.logger.Debug(ctx, "authentication failed", logger.Error(err))
		writeError(w, http.StatusUnauthorized, errorResponse{Err: errAuthenticationFailed})
		return
	}
	policy, ok := h.deps.Lookup(clientID)
	if !ok {
		h.logger.Debug(ctx, "no registration for client", logger.String("client_id", clientID))
		writeError(w, http.StatusForbidden, errorResponse{Err: errAccessDenied})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, errorResponse{Err: string(intake.CodeInvalidRequest)})
		return
	}

	res := h.deps.Process(ctx, body, policy)
	switch {
	case res.Accepted:
		w.WriteHeader(http.StatusAccepted)
	case res.Operational:
		writeError(w, http.StatusServiceUnavailable, errorResponse{Err: string(res.Code), Description: res.Description})
	default:
		writeError(w, http.StatusBadRequest, errorResponse{Err: string(res.Code), Description: res.Description})
	}
}

func writeError(w http.ResponseWriter, status int, body errorResponse) {
	b, _ := json.Marshal(body)
	w.Header().Set("Content-Type", mediaTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func isMediaType(header, want string) bool {
	mt, _, err := mime.ParseMediaType(header)
	return err == nil && strings.EqualFold(mt, want)
}

// acceptsJSON reports whether any Accept value admits application/json.
// A request without Accept is refused.
func acceptsJSON(values []string) bool {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
			if err != nil || isZeroQuality(params["q"]) {
				continue
			}
			switch strings.ToLower(mt) {
			case mediaTypeJSON, "application/*", "*/*":
				return true
			}
		}
	}
	return false
}

func isZeroQuality(q string) bool {
	if q == "" {
		return false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(q), 64)
	return err == nil && f == 0
}
