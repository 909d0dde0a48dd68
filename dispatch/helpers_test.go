package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

// --- Mock emitter ---

type mockEmitter struct {
	mu         sync.Mutex
	started    []int64
	offers     []emitOffer
	resolved   []emitResolved
	confirmed  []emitConfirmed
	cancelled  []emitCancelled
	changed    []emitChanged
	stalled    []int64
	violations []string
}

type emitOffer struct {
	offerID, bookingID, vendorID int64
	sequence                     int
}
type emitResolved struct {
	offerID int64
	status  string
}
type emitConfirmed struct {
	bookingID, vendorID int64
}
type emitCancelled struct {
	bookingID int64
	reason    string
}
type emitChanged struct {
	bookingID int64
	from, to  string
}

func (m *mockEmitter) EmitBookingCreated(int64, string, string) {}
func (m *mockEmitter) EmitDispatchStarted(bookingID int64, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, bookingID)
}
func (m *mockEmitter) EmitOfferCreated(offerID, bookingID, vendorID int64, sequence int, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers = append(m.offers, emitOffer{offerID, bookingID, vendorID, sequence})
}
func (m *mockEmitter) EmitOfferResolved(offerID, _, _ int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, emitResolved{offerID, status})
}
func (m *mockEmitter) EmitBookingConfirmed(bookingID, vendorID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed = append(m.confirmed, emitConfirmed{bookingID, vendorID})
}
func (m *mockEmitter) EmitBookingCancelled(bookingID int64, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, emitCancelled{bookingID, reason})
}
func (m *mockEmitter) EmitBookingStatusChanged(bookingID int64, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed = append(m.changed, emitChanged{bookingID, from, to})
}
func (m *mockEmitter) EmitDispatchStalled(bookingID int64, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stalled = append(m.stalled, bookingID)
}
func (m *mockEmitter) EmitInvariantViolation(_ int64, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, detail)
}

// --- Mock notifier ---

type mockNotifier struct {
	mu       sync.Mutex
	notified []int64
	err      error
}

func (n *mockNotifier) NotifyVendor(vendorID, offerID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, offerID)
	return n.err
}

// --- Flaky directory ---

// flakyDirectory wraps the real directory so tests can take it offline or
// act between search and claim. beforeSync runs once, ahead of the next
// Sync, which the dispatcher calls right after a store transaction.
type flakyDirectory struct {
	*directory.Manager
	mu         sync.Mutex
	down       bool
	afterFind  func([]directory.Candidate)
	beforeSync func(vendorID int64)
}

func (f *flakyDirectory) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyDirectory) FindCandidates(ctx context.Context, q directory.Query) ([]directory.Candidate, error) {
	f.mu.Lock()
	down, hook := f.down, f.afterFind
	f.mu.Unlock()
	if down {
		return nil, errors.New("connection refused")
	}
	cands, err := f.Manager.FindCandidates(ctx, q)
	if err == nil && hook != nil {
		hook(cands)
	}
	return cands, err
}

func (f *flakyDirectory) Sync(ctx context.Context, vendorID int64) error {
	f.mu.Lock()
	hook := f.beforeSync
	f.beforeSync = nil
	f.mu.Unlock()
	if hook != nil {
		hook(vendorID)
	}
	return f.Manager.Sync(ctx, vendorID)
}

// --- Fixture ---

// Pickup point; 0.018 deg of latitude is ~2 km, 0.045 deg ~5 km.
const pickupLat, pickupLng = 12.9756, 77.6050

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	db       *store.DB
	dir      *flakyDirectory
	d        *Dispatcher
	sweeper  *Sweeper
	emitter  *mockEmitter
	notifier *mockNotifier
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	cfg := config.Defaults().Dispatch
	dir := &flakyDirectory{Manager: directory.NewManager(db, nil)}
	em := &mockEmitter{}
	n := &mockNotifier{}
	d := NewDispatcher(db, dir, em, n, cfg)
	d.Now = func() time.Time { return t0 }
	return &fixture{
		db:       db,
		dir:      dir,
		d:        d,
		sweeper:  NewSweeper(d, cfg.SweepInterval),
		emitter:  em,
		notifier: n,
	}
}

// at moves the dispatcher clock.
func (f *fixture) at(now time.Time) {
	f.d.Now = func() time.Time { return now }
}

// vendorAt registers an available vendor distKm north of the pickup.
func (f *fixture) vendorAt(t *testing.T, name string, distKm float64) *store.Vendor {
	t.Helper()
	v := &store.Vendor{
		Name:         name,
		VehicleType:  "open-body",
		CapacityKg:   5000,
		Lat:          pickupLat + distKm/111.195,
		Lng:          pickupLng,
		Availability: directory.In,
	}
	require.NoError(t, f.dir.RegisterVendor(context.Background(), v))
	return v
}

func (f *fixture) booking(t *testing.T) *store.Booking {
	t.Helper()
	b := &store.Booking{
		UUID:        uuid.New().String(),
		RequesterID: "req-1",
		PickupLat:   pickupLat,
		PickupLng:   pickupLng,
		WeightKg:    1200,
		Status:      StatusPending,
	}
	require.NoError(t, f.db.CreateBooking(b))
	return b
}

func (f *fixture) availability(t *testing.T, vendorID int64) string {
	t.Helper()
	v, err := f.db.GetVendor(vendorID)
	require.NoError(t, err)
	return v.Availability
}

func (f *fixture) bookingState(t *testing.T, id int64) *store.Booking {
	t.Helper()
	b, err := f.db.GetBooking(id)
	require.NoError(t, err)
	return b
}

func (f *fixture) pendingOffer(t *testing.T, bookingID int64) *store.Offer {
	t.Helper()
	o, err := f.db.PendingOfferForBooking(bookingID)
	require.NoError(t, err)
	return o
}

// checkInvariants asserts the ledger and availability invariants over the
// whole database.
func (f *fixture) checkInvariants(t *testing.T) {
	t.Helper()
	bookings, err := f.db.ListBookings("", 1000)
	require.NoError(t, err)

	pendingByVendor := map[int64]int{}
	activeAcceptedByVendor := map[int64]int{}
	for _, b := range bookings {
		offers, err := f.db.ListOffersByBooking(b.ID)
		require.NoError(t, err)
		pending := 0
		for i, o := range offers {
			require.Equal(t, i+1, o.Sequence, "booking %d sequence gap", b.ID)
			switch o.Status {
			case OfferPending:
				pending++
				pendingByVendor[o.VendorID]++
			case OfferAccepted:
				if b.Status == StatusConfirmed || b.Status == StatusInTransit {
					activeAcceptedByVendor[o.VendorID]++
				}
			}
		}
		require.LessOrEqual(t, pending, 1, "booking %d has %d pending offers", b.ID, pending)
	}

	vendors, err := f.db.ListVendors()
	require.NoError(t, err)
	for _, v := range vendors {
		require.Equal(t, v.Availability == directory.Requested, pendingByVendor[v.ID] == 1,
			"vendor %d availability %s with %d pending offers", v.ID, v.Availability, pendingByVendor[v.ID])
		require.LessOrEqual(t, pendingByVendor[v.ID], 1)
		require.Equal(t, v.Availability == directory.Booked, activeAcceptedByVendor[v.ID] == 1,
			"vendor %d availability %s with %d active accepted offers", v.ID, v.Availability, activeAcceptedByVendor[v.ID])
	}
}
