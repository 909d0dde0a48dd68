package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/Devloperheera/test.digittrasway-sub003/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
	limiter  *ipLimiter
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	webCfg := eng.AppConfig().Web
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(webCfg.SessionSecret),
		eventHub: hub,
		limiter:  newIPLimiter(webCfg.RateLimit.RequestsPerSecond, webCfg.RateLimit.Burst),
	}

	h.ensureDefaultOperator(eng.DB())

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/events", hub.SSEHandler)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/login", h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/health", h.apiHealthCheck)

		// Public routes, rate limited per client
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/bookings", h.apiCreateBooking)
			r.Get("/bookings", h.apiListBookings)
			r.Get("/bookings/{id}", h.apiGetBooking)
			r.Get("/bookings/{id}/offers", h.apiBookingOffers)
			r.Get("/bookings/{id}/history", h.apiBookingHistory)
			r.Post("/offers/{id}/accept", h.apiAcceptOffer)
			r.Post("/offers/{id}/reject", h.apiRejectOffer)
			r.Get("/vendors", h.apiListVendors)
			r.Get("/vendors/nearby", h.apiNearbyVendors)
			r.Get("/vendors/{id}/offers", h.apiVendorOffers)
		})

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/vendors", h.apiCreateVendor)
			r.Post("/vendors/{id}/availability", h.apiSetVendorAvailability)
			r.Post("/bookings/{id}/cancel", h.apiCancelBooking)
			r.Post("/bookings/{id}/redispatch", h.apiRedispatch)
			r.Post("/bookings/{id}/start-trip", h.apiStartTrip)
			r.Post("/bookings/{id}/complete", h.apiCompleteTrip)
			r.Post("/password", h.apiChangePassword)
			r.Post("/sweep", h.apiSweep)
			r.Get("/audit", h.apiAuditLog)
			r.Get("/config", h.apiGetConfig)
			r.Post("/config", h.apiSaveConfig)
		})
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}
