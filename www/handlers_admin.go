package www

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.engine.Health()
	status := "ok"
	if !health["database"] {
		status = "degraded"
	}
	var outbox any
	if backlog, err := h.engine.DB().CountOutbox(); err == nil {
		outbox = backlog
	}
	h.jsonOK(w, map[string]any{
		"status":      status,
		"database":    health["database"],
		"directory":   health["directory"],
		"messaging":   health["messaging"],
		"sse_clients": h.eventHub.ClientCount(),
		"outbox":      outbox,
	})
}

func (h *Handlers) apiSweep(w http.ResponseWriter, r *http.Request) {
	res := h.engine.Sweep(r.Context())
	log.Printf("www: manual sweep by %s: %d expired", h.getUsername(r), res.Expired)
	h.jsonOK(w, res)
}

// apiAuditLog filters by entity, action and actor. Page with before_id set
// to the smallest id of the previous page.
func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AuditFilter{
		EntityType: q.Get("entity_type"),
		Action:     q.Get("action"),
		Actor:      q.Get("actor"),
		Limit:      queryInt(r, "limit", 100),
	}
	for name, dst := range map[string]*int64{"entity_id": &f.EntityID, "before_id": &f.BeforeID} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			h.jsonError(w, name+" must be a positive integer", http.StatusBadRequest)
			return
		}
		*dst = n
	}
	if f.EntityID != 0 && f.EntityType == "" {
		h.jsonError(w, "entity_id needs entity_type", http.StatusBadRequest)
		return
	}
	entries, err := h.engine.DB().ListAudit(f)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}
	h.jsonOK(w, entries)
}

// apiGetConfig returns the running configuration with secrets removed.
func (h *Handlers) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	cfg.Lock()
	defer cfg.Unlock()
	h.jsonOK(w, map[string]any{
		"database": map[string]any{
			"driver": cfg.Database.Driver,
		},
		"redis": map[string]any{
			"address": cfg.Redis.Address,
			"db":      cfg.Redis.DB,
		},
		"dispatch": map[string]any{
			"offer_ttl":        cfg.Dispatch.OfferTTL.String(),
			"sweep_interval":   cfg.Dispatch.SweepInterval.String(),
			"search_radius_km": cfg.Dispatch.SearchRadiusKm,
			"max_candidates":   cfg.Dispatch.MaxCandidates,
			"stuck_grace":      cfg.Dispatch.StuckGrace.String(),
		},
		"messaging": map[string]any{
			"backend":             cfg.Messaging.Backend,
			"kafka_brokers":       cfg.Messaging.Kafka.Brokers,
			"mqtt_broker":         cfg.Messaging.MQTT.Broker,
			"mqtt_port":           cfg.Messaging.MQTT.Port,
			"bookings_topic":      cfg.Messaging.BookingsTopic,
			"vendor_topic_prefix": cfg.Messaging.VendorTopicPrefix,
			"requester_topic":     cfg.Messaging.RequesterTopic,
		},
	})
}

// apiSaveConfig updates one config section from form values and persists
// the file. Dispatch settings take effect on the next restart.
func (h *Handlers) apiSaveConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	section := r.FormValue("section")
	cfg := h.engine.AppConfig()
	restart := false

	cfg.Lock()
	switch section {
	case "dispatch":
		if d, err := time.ParseDuration(r.FormValue("offer_ttl")); err == nil && d > 0 {
			cfg.Dispatch.OfferTTL = d
		}
		if d, err := time.ParseDuration(r.FormValue("sweep_interval")); err == nil && d > 0 {
			cfg.Dispatch.SweepInterval = d
		}
		if d, err := time.ParseDuration(r.FormValue("stuck_grace")); err == nil && d > 0 {
			cfg.Dispatch.StuckGrace = d
		}
		if f, err := strconv.ParseFloat(r.FormValue("search_radius_km"), 64); err == nil && f > 0 {
			cfg.Dispatch.SearchRadiusKm = f
		}
		if n, err := strconv.Atoi(r.FormValue("max_candidates")); err == nil && n > 0 {
			cfg.Dispatch.MaxCandidates = n
		}
		restart = true
	case "messaging":
		if v := r.FormValue("backend"); v == "kafka" || v == "mqtt" {
			cfg.Messaging.Backend = v
		}
		if v := strings.TrimSpace(r.FormValue("kafka_brokers")); v != "" {
			var brokers []string
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					brokers = append(brokers, b)
				}
			}
			cfg.Messaging.Kafka.Brokers = brokers
		}
		if v := r.FormValue("mqtt_broker"); v != "" {
			cfg.Messaging.MQTT.Broker = v
		}
		if p, err := strconv.Atoi(r.FormValue("mqtt_port")); err == nil {
			cfg.Messaging.MQTT.Port = p
		}
	default:
		cfg.Unlock()
		h.jsonError(w, fmt.Sprintf("unknown config section %q", section), http.StatusBadRequest)
		return
	}
	cfg.Unlock()

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		log.Printf("www: config save: %v", err)
		h.jsonError(w, "save failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("www: config section %s saved by %s", section, h.getUsername(r))

	if section == "messaging" {
		h.engine.ReconfigureMessaging()
	}
	h.jsonOK(w, map[string]any{"ok": true, "section": section, "restart_required": restart})
}
