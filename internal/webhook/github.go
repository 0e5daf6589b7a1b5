package webhook

import (
	"context"
	"net/http"

	"github.com/google/go-github/v60/github"
)

// maxPayloadBytes bounds the webhook body read into memory.
const maxPayloadBytes = 5 << 20

// GitHubEvent represents a verified GitHub webhook delivery.
type GitHubEvent struct {
	EventType  string
	DeliveryID string
	RawPayload []byte
}

// GitHubEventHandler is called when a valid GitHub webhook is received.
type GitHubEventHandler func(ctx context.Context, event *GitHubEvent) error

// GitHubHandler handles GitHub webhook requests.
type GitHubHandler struct {
	secret  string
	handler GitHubEventHandler
}

// NewGitHubHandler creates a new GitHub webhook handler.
func NewGitHubHandler(secret string, handler GitHubEventHandler) *GitHubHandler {
	return &GitHubHandler{
		secret:  secret,
		handler: handler,
	}
}

// ServeHTTP implements http.Handler.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(github.SHA256SignatureHeader) == "" {
		http.Error(w, "missing signature", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	payload, err := github.ValidatePayload(r, []byte(h.secret))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event := &GitHubEvent{
		EventType:  github.WebHookType(r),
		DeliveryID: github.DeliveryID(r),
		RawPayload: payload,
	}
	if event.EventType == "ping" {
		w.Write([]byte("pong"))
		return
	}

	if err := h.handler(r.Context(), event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
