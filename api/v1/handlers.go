package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinoosan/bilibatch/internal/reqid"
	"github.com/tinoosan/bilibatch/internal/service"
)

// BatchHandler serves the batch extraction API.
type BatchHandler struct {
	l   *slog.Logger
	svc service.Batch
}

func NewBatchHandler(l *slog.Logger, svc service.Batch) *BatchHandler {
	return &BatchHandler{l: l, svc: svc}
}

func (h *BatchHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	markErr(w, err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		reqid.Logger(r.Context(), h.l).Error("request failed", "err", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// GetItems lists the items of the page named by ?url=.
func (h *BatchHandler) GetItems(w http.ResponseWriter, r *http.Request) {
	u := strings.TrimSpace(r.URL.Query().Get("url"))
	if u == "" {
		h.fail(w, r, ErrURLRequired)
		return
	}
	l, err := h.svc.Items(r.Context(), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, l)
}

func (h *BatchHandler) decode(w http.ResponseWriter, r *http.Request) (service.Request, bool) {
	var req service.Request
	if err := decodeJSONStrict(w, r, &req); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.Is(err, ErrContentType):
			h.fail(w, r, err)
		case errors.As(err, &mbe):
			markErr(w, err)
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		default:
			markErr(w, err)
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		}
		return req, false
	}
	if strings.TrimSpace(req.URL) == "" {
		h.fail(w, r, ErrURLRequired)
		return req, false
	}
	return req, true
}

// Export resolves the page and returns a playlist or the JSON models.
func (h *BatchHandler) Export(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Export(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("X-Extractor", out.Extractor)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.Body))
}

// Dispatch resolves the page and sends every item to aria2.
func (h *BatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Dispatch(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusAccepted, res)
}
