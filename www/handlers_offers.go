package www

import (
	"errors"
	"net/http"

	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func (h *Handlers) apiAcceptOffer(w http.ResponseWriter, r *http.Request) {
	h.respondToOffer(w, r, dispatch.Accept)
}

func (h *Handlers) apiRejectOffer(w http.ResponseWriter, r *http.Request) {
	h.respondToOffer(w, r, dispatch.Reject)
}

// respondToOffer records a vendor's answer. When the body names a vendor
// it must be the one the offer went to.
func (h *Handlers) respondToOffer(w http.ResponseWriter, r *http.Request, decision dispatch.Decision) {
	id, ok := urlID(r)
	if !ok {
		h.jsonError(w, "invalid offer id", http.StatusBadRequest)
		return
	}
	var req struct {
		VendorID int64 `json:"vendor_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	db := h.engine.DB()
	o, err := db.GetOffer(id)
	if errors.Is(err, store.ErrNotFound) {
		h.jsonError(w, "offer not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if req.VendorID != 0 && req.VendorID != o.VendorID {
		h.jsonError(w, "offer belongs to another vendor", http.StatusForbidden)
		return
	}

	if err := h.engine.Dispatcher().Respond(r.Context(), id, decision); err != nil {
		h.writeDispatchError(w, err)
		return
	}
	if o, err = db.GetOffer(id); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, o)
}
