package www

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/engine"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

const (
	pickupLat = 22.5726
	pickupLng = 88.3639
)

type server struct {
	eng    *engine.Engine
	router http.Handler
	clock  time.Time
}

func newServer(t *testing.T, tweak func(*config.Config)) *server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "www.db")
	if tweak != nil {
		tweak(cfg)
	}
	db, err := store.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: filepath.Join(t.TempDir(), "config.yaml"),
		DB:         db,
		Directory:  directory.NewManager(db, nil),
		LogFunc:    t.Logf,
	})
	s := &server{eng: eng, clock: t0}
	eng.Dispatcher().Now = func() time.Time { return s.clock }

	router, stop := NewRouter(eng)
	t.Cleanup(stop)
	s.router = router
	return s
}

func (s *server) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	rec := s.login(t, "admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionName {
			return c
		}
	}
	t.Fatal("no session cookie after login")
	return nil
}

func (s *server) vendor(t *testing.T, name string, offsetKm float64) *store.Vendor {
	t.Helper()
	v := &store.Vendor{Name: name, Phone: "+91-90000-00000", VehicleType: "truck", CapacityKg: 9000,
		Lat: pickupLat + offsetKm/111.0, Lng: pickupLng, Availability: directory.In}
	require.NoError(t, s.eng.RegisterVendor(context.Background(), v, "test"))
	return v
}

const bookingBody = `{"requester_id":"shipper-7","pickup_lat":22.5726,"pickup_lng":88.3639,
	"pickup_address":"Howrah","drop_lat":22.60,"drop_lng":88.40,"drop_address":"Salt Lake",
	"material":"cement","weight_kg":2000,"quoted_price":4500}`

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *server) createBooking(t *testing.T) *store.Booking {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/bookings", bookingBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		Booking *store.Booking `json:"booking"`
	}](t, rec).Booking
}

func (s *server) offers(t *testing.T, bookingRef string) []*store.Offer {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/bookings/"+bookingRef+"/offers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[[]*store.Offer](t, rec)
}

func TestCreateBookingOffersNearestVendor(t *testing.T) {
	s := newServer(t, nil)
	s.vendor(t, "far", 8)
	near := s.vendor(t, "near", 1)

	b := s.createBooking(t)
	assert.Equal(t, dispatch.StatusSearching, b.Status)

	// UUID and numeric id both resolve
	offers := s.offers(t, b.UUID)
	require.Len(t, offers, 1)
	assert.Equal(t, near.ID, offers[0].VendorID)
	assert.Equal(t, dispatch.OfferPending, offers[0].Status)
	assert.True(t, offers[0].ExpiresAt.Equal(t0.Add(2*time.Minute)), offers[0].ExpiresAt)

	rec := s.do(t, http.MethodGet, "/api/bookings/"+itoa(b.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, b.UUID, decode[store.Booking](t, rec).UUID)
}

func TestCreateBookingWithNoVendorsIsCancelled(t *testing.T) {
	s := newServer(t, nil)
	b := s.createBooking(t)
	assert.Equal(t, dispatch.StatusCancelled, b.Status)
	assert.Equal(t, dispatch.ReasonNoVendorsInRange, b.CancelReason)
}

func TestCreateBookingRejectsBadInput(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(t, http.MethodPost, "/api/bookings", `{"requester_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bookings", `{"requester_id":"shipper-7","pickup_lat":122.5,"pickup_lng":88.3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptOfferThenRepeatIsNoop(t *testing.T) {
	s := newServer(t, nil)
	v := s.vendor(t, "only", 1)
	b := s.createBooking(t)
	o := s.offers(t, b.UUID)[0]

	rec := s.do(t, http.MethodPost, "/api/offers/"+itoa(o.ID)+"/accept", `{"vendor_id":`+itoa(v.ID)+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, dispatch.OfferAccepted, decode[store.Offer](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/offers/"+itoa(o.ID)+"/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["noop"])

	rec = s.do(t, http.MethodGet, "/api/bookings/"+b.UUID, "")
	got := decode[store.Booking](t, rec)
	assert.Equal(t, dispatch.StatusConfirmed, got.Status)
	require.NotNil(t, got.AssignedVendorID)
	assert.Equal(t, v.ID, *got.AssignedVendorID)
}

func TestRejectAdvancesToNextVendor(t *testing.T) {
	s := newServer(t, nil)
	s.vendor(t, "first", 1)
	second := s.vendor(t, "second", 3)
	b := s.createBooking(t)
	first := s.offers(t, b.UUID)[0]

	rec := s.do(t, http.MethodPost, "/api/offers/"+itoa(first.ID)+"/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)

	offers := s.offers(t, b.UUID)
	require.Len(t, offers, 2)
	assert.Equal(t, dispatch.OfferRejected, offers[0].Status)
	assert.Equal(t, second.ID, offers[1].VendorID)
	assert.Equal(t, 2, offers[1].Sequence)
}

func TestLateAcceptIsGone(t *testing.T) {
	s := newServer(t, nil)
	s.vendor(t, "slow", 1)
	b := s.createBooking(t)
	o := s.offers(t, b.UUID)[0]

	s.clock = t0.Add(2 * time.Minute)
	rec := s.do(t, http.MethodPost, "/api/offers/"+itoa(o.ID)+"/accept", "")
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestOfferWrongVendorForbidden(t *testing.T) {
	s := newServer(t, nil)
	v := s.vendor(t, "only", 1)
	b := s.createBooking(t)
	o := s.offers(t, b.UUID)[0]

	rec := s.do(t, http.MethodPost, "/api/offers/"+itoa(o.ID)+"/accept", `{"vendor_id":`+itoa(v.ID+99)+`}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, dispatch.OfferPending, s.offers(t, b.UUID)[0].Status)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/bookings/42", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/bookings/no-such-uuid/offers", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/offers/42/accept", "").Code)
}

func TestOperatorRoutesRequireLogin(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/sweep", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.login(t, "admin", "wrong").Code)

	cookie := s.adminCookie(t)
	rec := s.do(t, http.MethodPost, "/api/sweep", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, decode[map[string]int](t, rec)["expired"])
}

func TestManualSweepExpiresAndAdvances(t *testing.T) {
	s := newServer(t, nil)
	s.vendor(t, "first", 1)
	s.vendor(t, "second", 2)
	b := s.createBooking(t)
	cookie := s.adminCookie(t)

	s.clock = t0.Add(3 * time.Minute)
	rec := s.do(t, http.MethodPost, "/api/sweep", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[map[string]int](t, rec)
	assert.Equal(t, 1, res["expired"])
	assert.Equal(t, 1, res["advanced"])

	offers := s.offers(t, b.UUID)
	require.Len(t, offers, 2)
	assert.Equal(t, dispatch.OfferExpired, offers[0].Status)
	assert.Equal(t, dispatch.OfferPending, offers[1].Status)
}

func TestOperatorCancelReleasesVendor(t *testing.T) {
	s := newServer(t, nil)
	v := s.vendor(t, "only", 1)
	b := s.createBooking(t)
	cookie := s.adminCookie(t)

	rec := s.do(t, http.MethodPost, "/api/bookings/"+b.UUID+"/cancel", `{"reason":"shipper called"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[store.Booking](t, rec)
	assert.Equal(t, dispatch.StatusCancelled, got.Status)
	assert.Equal(t, "shipper called", got.CancelReason)

	vendor, err := s.eng.DB().GetVendor(v.ID)
	require.NoError(t, err)
	assert.Equal(t, directory.In, vendor.Availability)

	// cancelling twice changes nothing
	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.UUID+"/cancel", "", cookie)
	assert.Equal(t, true, decode[map[string]any](t, rec)["noop"])
}

func TestTripLifecycle(t *testing.T) {
	s := newServer(t, nil)
	v := s.vendor(t, "only", 1)
	b := s.createBooking(t)
	o := s.offers(t, b.UUID)[0]
	cookie := s.adminCookie(t)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/offers/"+itoa(o.ID)+"/accept", "").Code)

	rec := s.do(t, http.MethodPost, "/api/bookings/"+b.UUID+"/start-trip", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dispatch.StatusInTransit, decode[store.Booking](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.UUID+"/complete", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dispatch.StatusCompleted, decode[store.Booking](t, rec).Status)

	vendor, err := s.eng.DB().GetVendor(v.ID)
	require.NoError(t, err)
	assert.Equal(t, directory.In, vendor.Availability)

	rec = s.do(t, http.MethodGet, "/api/bookings/"+b.UUID+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []string
	for _, h := range decode[[]*store.BookingHistory](t, rec) {
		statuses = append(statuses, h.Status)
	}
	assert.Contains(t, statuses, dispatch.StatusInTransit)
	assert.Contains(t, statuses, dispatch.StatusCompleted)
}

func TestVendorRegistrationAndDuty(t *testing.T) {
	s := newServer(t, nil)
	cookie := s.adminCookie(t)

	rec := s.do(t, http.MethodPost, "/api/vendors",
		`{"name":"Ravi Transport","phone":"+91-91234-56789","vehicle_type":"truck","capacity_kg":7000,"lat":22.58,"lng":88.36}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decode[store.Vendor](t, rec)
	assert.Equal(t, directory.Out, v.Availability)

	rec = s.do(t, http.MethodPost, "/api/vendors/"+itoa(v.ID)+"/availability", `{"availability":"in"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, directory.In, decode[store.Vendor](t, rec).Availability)

	rec = s.do(t, http.MethodPost, "/api/vendors/"+itoa(v.ID)+"/availability", `{"availability":"booked"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/vendors?availability=in", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*store.Vendor](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/vendors/nearby?lat=22.5726&lng=88.3639&radius_km=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cands := decode[[]directory.Candidate](t, rec)
	require.Len(t, cands, 1)
	assert.Equal(t, v.ID, cands[0].Vendor.ID)

	rec = s.do(t, http.MethodGet, "/api/audit?entity_type=vendor&entity_id="+itoa(v.ID), "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*store.AuditEntry](t, rec), 2)
}

func TestBusyVendorCannotGoOffDuty(t *testing.T) {
	s := newServer(t, nil)
	v := s.vendor(t, "only", 1)
	s.createBooking(t)
	cookie := s.adminCookie(t)

	rec := s.do(t, http.MethodPost, "/api/vendors/"+itoa(v.ID)+"/availability", `{"availability":"out"}`, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfigSaveDispatchSection(t *testing.T) {
	s := newServer(t, nil)
	cookie := s.adminCookie(t)

	form := url.Values{"section": {"dispatch"}, "offer_ttl": {"90s"}, "max_candidates": {"5"}}
	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["restart_required"])

	saved, err := config.Load(s.eng.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, saved.Dispatch.OfferTTL)
	assert.Equal(t, 5, saved.Dispatch.MaxCandidates)

	rec = s.do(t, http.MethodGet, "/api/config", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestPublicRoutesAreRateLimited(t *testing.T) {
	s := newServer(t, func(cfg *config.Config) {
		cfg.Web.RateLimit.RequestsPerSecond = 0.001
		cfg.Web.RateLimit.Burst = 2
	})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/bookings", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/vendors", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodGet, "/api/bookings", "").Code)

	// health is outside the limited group
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/health", "").Code)
}

func TestEventHubForwardsEngineEvents(t *testing.T) {
	s := newServer(t, nil)
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()
	hub.SetupEngineListeners(s.eng)

	ch := hub.AddClient(0)
	defer hub.RemoveClient(ch)
	assert.Equal(t, 1, hub.ClientCount())

	s.vendor(t, "evented", 1)

	select {
	case evt := <-ch:
		assert.Equal(t, "vendor-updated", evt.Event)
		assert.Contains(t, evt.Data, `"action":"registered"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no event forwarded")
	}
}

func TestEventHubBookingFilter(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.AddClient(2)
	defer hub.RemoveClient(ch)

	hub.Broadcast(SSEEvent{Event: "offer-created", Data: `{"booking_id":1}`, BookingID: 1})
	hub.Broadcast(SSEEvent{Event: "sweep-completed", Data: `{}`})
	hub.Broadcast(SSEEvent{Event: "offer-created", Data: `{"booking_id":2}`, BookingID: 2})

	select {
	case evt := <-ch:
		assert.Equal(t, int64(2), evt.BookingID)
	case <-time.After(2 * time.Second):
		t.Fatal("filtered client got nothing")
	}
}

func TestEventsRejectsBadBookingFilter(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/events?booking=abc", "").Code)
}

func TestChangePassword(t *testing.T) {
	s := newServer(t, nil)
	cookie := s.adminCookie(t)

	rec := s.do(t, http.MethodPost, "/api/password", `{"current_password":"admin","new_password":"short"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/password", `{"current_password":"nope","new_password":"long-enough-1"}`, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/password", `{"current_password":"admin","new_password":"long-enough-1"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, s.login(t, "admin", "admin").Code)
	assert.Equal(t, http.StatusOK, s.login(t, "admin", "long-enough-1").Code)

	op, err := s.eng.DB().GetOperator("admin")
	require.NoError(t, err)
	assert.NotNil(t, op.LastLoginAt)
}

func TestAuditFilterByActorAndAction(t *testing.T) {
	s := newServer(t, nil)
	s.vendor(t, "seeded", 1)
	cookie := s.adminCookie(t)

	rec := s.do(t, http.MethodPost, "/api/vendors", `{"name":"Via API","lat":22.58,"lng":88.36}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/audit?entity_type=vendor&actor=admin", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]*store.AuditEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].Actor)

	rec = s.do(t, http.MethodGet, "/api/audit?entity_type=vendor&action=registered&limit=1", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[[]*store.AuditEntry](t, rec)
	require.Len(t, page, 1)

	rec = s.do(t, http.MethodGet, "/api/audit?entity_type=vendor&action=registered&before_id="+itoa(page[0].ID), "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	older := decode[[]*store.AuditEntry](t, rec)
	require.Len(t, older, 1)
	assert.Less(t, older[0].ID, page[0].ID)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/audit?entity_id=4", "", cookie).Code)
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{dispatch.ErrExpired, http.StatusGone},
		{dispatch.ErrDirectoryUnavailable, http.StatusServiceUnavailable},
		{directory.ErrUnavailable, http.StatusServiceUnavailable},
		{dispatch.ErrOfferNotFound, http.StatusNotFound},
		{store.ErrNotFound, http.StatusNotFound},
		{dispatch.ErrInvalidBooking, http.StatusBadRequest},
		{directory.ErrVendorBusy, http.StatusConflict},
		{dispatch.ErrConflictingOffer, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, errorStatus(c.err), c.err.Error())
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
