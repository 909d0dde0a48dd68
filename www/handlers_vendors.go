package www

import (
	"net/http"
	"strings"

	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func (h *Handlers) apiListVendors(w http.ResponseWriter, r *http.Request) {
	var (
		vendors []*store.Vendor
		err     error
	)
	if a := r.URL.Query().Get("availability"); a != "" {
		if !directory.ValidAvailability(a) {
			h.jsonError(w, "unknown availability "+a, http.StatusBadRequest)
			return
		}
		vendors, err = h.engine.DB().ListVendorsByAvailability(a)
	} else {
		vendors, err = h.engine.DB().ListVendors()
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, vendors)
}

func (h *Handlers) apiNearbyVendors(w http.ResponseWriter, r *http.Request) {
	lat, okLat := queryFloat(r, "lat")
	lng, okLng := queryFloat(r, "lng")
	if !okLat || !okLng {
		h.jsonError(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	radius, ok := queryFloat(r, "radius_km")
	if !ok || radius <= 0 {
		radius = h.engine.AppConfig().Dispatch.SearchRadiusKm
	}
	cands, err := h.engine.Directory().Nearby(r.Context(), lat, lng, radius)
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonOK(w, cands)
}

func (h *Handlers) apiVendorOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.jsonError(w, "invalid vendor id", http.StatusBadRequest)
		return
	}
	offers, err := h.engine.DB().ListOffersByVendor(id, queryInt(r, "limit", 50))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, offers)
}

func (h *Handlers) apiCreateVendor(w http.ResponseWriter, r *http.Request) {
	var v store.Vendor
	if err := decodeBody(r, &v); err != nil {
		h.jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	v.ID = 0
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		h.jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	switch v.Availability {
	case "", directory.In, directory.Out:
	default:
		h.jsonError(w, "new vendors start in or out", http.StatusBadRequest)
		return
	}
	if err := h.engine.RegisterVendor(r.Context(), &v, h.getUsername(r)); err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonStatus(w, v, http.StatusCreated)
}

func (h *Handlers) apiSetVendorAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.jsonError(w, "invalid vendor id", http.StatusBadRequest)
		return
	}
	var req struct {
		Availability string `json:"availability"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.SetVendorDuty(r.Context(), id, req.Availability, h.getUsername(r)); err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	v, err := h.engine.DB().GetVendor(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, v)
}
