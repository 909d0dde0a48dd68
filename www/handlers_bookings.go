package www

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func (h *Handlers) apiCreateBooking(w http.ResponseWriter, r *http.Request) {
	var nb dispatch.NewBooking
	if err := decodeBody(r, &nb); err != nil {
		h.jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.engine.Dispatcher().CreateBooking(r.Context(), nb)
	if b == nil {
		h.writeDispatchError(w, err)
		return
	}
	if err != nil {
		// stored but not yet offered to anyone
		h.jsonStatus(w, map[string]any{"booking": b, "error": err.Error()}, errorStatus(err))
		return
	}
	h.jsonStatus(w, map[string]any{"booking": b}, http.StatusCreated)
}

func (h *Handlers) apiListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.engine.DB().ListBookings(r.URL.Query().Get("status"), queryInt(r, "limit", 50))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, bookings)
}

// lookupBooking resolves {id} as a numeric booking id or a booking UUID.
func (h *Handlers) lookupBooking(w http.ResponseWriter, r *http.Request) (*store.Booking, bool) {
	param := chi.URLParam(r, "id")
	var (
		b   *store.Booking
		err error
	)
	if id, perr := strconv.ParseInt(param, 10, 64); perr == nil {
		b, err = h.engine.DB().GetBooking(id)
	} else {
		b, err = h.engine.DB().GetBookingByUUID(param)
	}
	if errors.Is(err, store.ErrNotFound) {
		h.jsonError(w, "booking not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return b, true
}

func (h *Handlers) apiGetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookupBooking(w, r)
	if !ok {
		return
	}
	h.jsonOK(w, b)
}

func (h *Handlers) apiBookingOffers(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookupBooking(w, r)
	if !ok {
		return
	}
	offers, err := h.engine.DB().ListOffersByBooking(b.ID)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, offers)
}

func (h *Handlers) apiBookingHistory(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookupBooking(w, r)
	if !ok {
		return
	}
	history, err := h.engine.DB().ListBookingHistory(b.ID)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, history)
}

func (h *Handlers) apiCancelBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookupBooking(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.Dispatcher().CancelBooking(r.Context(), b.ID, req.Reason); err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.bookingResult(w, b.ID)
}

func (h *Handlers) apiRedispatch(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.engine.Dispatcher().Redispatch)
}

func (h *Handlers) apiStartTrip(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.engine.Dispatcher().StartTrip)
}

func (h *Handlers) apiCompleteTrip(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.engine.Dispatcher().CompleteTrip)
}

func (h *Handlers) bookingAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, bookingID int64) error) {
	b, ok := h.lookupBooking(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), b.ID); err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.bookingResult(w, b.ID)
}

func (h *Handlers) bookingResult(w http.ResponseWriter, id int64) {
	b, err := h.engine.DB().GetBooking(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, b)
}
