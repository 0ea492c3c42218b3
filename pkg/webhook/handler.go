package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

const reasonRejected = "rejected transition"

// EventProcessor is implemented by Processor.
type EventProcessor interface {
	Process(ctx context.Context, ev Event) (Result, error)
}

type response struct {
	Received bool   `json:"received"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Handler returns an http.Handler that verifies requests with parser and
// hands events to proc. Rejected signatures get 401, malformed bodies 400
// and processing failures 500 so the gateway redelivers. An event whose
// transition the table rejects is acknowledged with 200: it is recorded
// as permanently failed and a redelivery cannot change that.
func Handler(parser Parser, proc EventProcessor, log *slog.Logger) http.Handler {
	if parser == nil || proc == nil {
		panic("webhook: parser and processor are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, response{Error: "method not allowed"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

		ev, err := parser.Parse(r)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrInvalidSignature) {
				status = http.StatusUnauthorized
			}
			log.LogAttrs(r.Context(), slog.LevelWarn, "webhook rejected",
				slog.Int("status", status),
				logger.Error(err),
			)
			writeJSON(w, status, response{Error: http.StatusText(status)})
			return
		}

		res, err := proc.Process(r.Context(), ev)
		if errors.Is(err, subscription.ErrInvalidTransition) {
			log.LogAttrs(r.Context(), slog.LevelWarn, "webhook transition rejected",
				logger.EventID(ev.ID),
				logger.EventType(ev.Type),
				logger.Error(err),
			)
			writeJSON(w, http.StatusOK, response{Received: true, Reason: reasonRejected})
			return
		}
		if err != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "webhook processing failed",
				logger.EventID(ev.ID),
				logger.EventType(ev.Type),
				logger.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, response{Error: "processing failed"})
			return
		}
		writeJSON(w, http.StatusOK, response{Received: true, Reason: res.Decision.Reason})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
