package www

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, data, http.StatusOK)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// errorStatus maps engine errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrExpired):
		return http.StatusGone
	case errors.Is(err, dispatch.ErrDirectoryUnavailable),
		errors.Is(err, directory.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, dispatch.ErrBookingNotFound),
		errors.Is(err, dispatch.ErrOfferNotFound),
		errors.Is(err, directory.ErrVendorNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrInvalidBooking),
		errors.Is(err, dispatch.ErrUnknownDecision),
		errors.Is(err, directory.ErrInvalidAvailability):
		return http.StatusBadRequest
	case errors.Is(err, directory.ErrVendorBusy):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeDispatchError answers a failed engine call. A call that was not
// valid for the current state changed nothing and reports a no-op.
func (h *Handlers) writeDispatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, dispatch.ErrInvalidState) {
		h.jsonOK(w, map[string]any{"noop": true, "detail": err.Error()})
		return
	}
	h.jsonError(w, err.Error(), errorStatus(err))
}

func urlID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string) (float64, bool) {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return v, err == nil
}

// decodeBody reads a JSON body into dst. An empty body leaves dst as is.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
