package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/protocol"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

const pickupLat, pickupLng = 22.5726, 88.3639

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Defaults()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "engine.db")
	db, err := store.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := New(Config{
		AppConfig: cfg,
		DB:        db,
		Directory: directory.NewManager(db, nil),
		LogFunc:   t.Logf,
	})
	eng.Dispatcher().Now = func() time.Time { return t0 }
	return eng
}

func registerVendor(t *testing.T, eng *Engine, name string) *store.Vendor {
	t.Helper()
	v := &store.Vendor{Name: name, Phone: "+91-98300-00000", VehicleType: "truck", CapacityKg: 9000,
		Lat: pickupLat + 0.01, Lng: pickupLng, Availability: directory.In}
	if err := eng.RegisterVendor(context.Background(), v, "test"); err != nil {
		t.Fatalf("register: %v", err)
	}
	return v
}

func createBooking(t *testing.T, eng *Engine) *store.Booking {
	t.Helper()
	b, err := eng.Dispatcher().CreateBooking(context.Background(), dispatch.NewBooking{
		RequesterID: "shipper-7", PickupLat: pickupLat, PickupLng: pickupLng,
		DropLat: 22.60, DropLng: 88.40, WeightKg: 2000,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

// outbox returns the message types queued on topic, in order.
func outbox(t *testing.T, eng *Engine, topic string) []string {
	t.Helper()
	msgs, err := eng.DB().ListPendingOutbox(t0, 100)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	var types []string
	for _, m := range msgs {
		if m.Topic == topic {
			types = append(types, m.MsgType)
		}
	}
	return types
}

func auditActions(t *testing.T, eng *Engine, entity string, id int64) []string {
	t.Helper()
	entries, err := eng.DB().ListAudit(store.AuditFilter{EntityType: entity, EntityID: id})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	var out []string
	for _, a := range entries {
		out = append(out, a.Action)
	}
	return out
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestEventBusFilterAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	var all, only []EventType
	bus.Subscribe(func(e Event) { all = append(all, e.Type) })
	id := bus.SubscribeTypes(func(e Event) { only = append(only, e.Type) }, EventBookingConfirmed)

	bus.Emit(Event{Type: EventBookingCreated})
	bus.Emit(Event{Type: EventBookingConfirmed})
	bus.Unsubscribe(id)
	bus.Emit(Event{Type: EventBookingConfirmed})

	if len(all) != 3 {
		t.Errorf("all = %v, want 3 events", all)
	}
	if len(only) != 1 || only[0] != EventBookingConfirmed {
		t.Errorf("filtered = %v, want one confirmed", only)
	}
	if bus.Len() != 1 {
		t.Errorf("Len = %d, want 1", bus.Len())
	}
}

func TestEventBusSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewEventBus()
	got := 0
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { got++ })
	bus.Emit(Event{Type: EventSweepCompleted})
	if got != 1 {
		t.Errorf("second subscriber called %d times, want 1", got)
	}
}

func TestAcceptFlowNotifiesRequester(t *testing.T) {
	eng := testEngine(t)
	v := registerVendor(t, eng, "Howrah Movers")
	b := createBooking(t, eng)
	topic := eng.AppConfig().Messaging.RequesterTopic

	if got := outbox(t, eng, topic); len(got) != 1 || got[0] != protocol.TypeBookingUpdate {
		t.Fatalf("requester outbox = %v, want [booking.update]", got)
	}
	if got := outbox(t, eng, eng.Notifier().VendorTopic(v.ID)); len(got) != 1 || got[0] != protocol.TypeOfferNotify {
		t.Fatalf("vendor outbox = %v, want [offer.notify]", got)
	}

	o, err := eng.DB().PendingOfferForBooking(b.ID)
	if err != nil {
		t.Fatalf("pending offer: %v", err)
	}
	if err := eng.Dispatcher().Respond(context.Background(), o.ID, dispatch.Accept); err != nil {
		t.Fatalf("accept: %v", err)
	}

	msgs, _ := eng.DB().ListPendingOutbox(t0, 100)
	var confirmed *protocol.BookingConfirmed
	for _, m := range msgs {
		if m.MsgType != protocol.TypeBookingConfirmed {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(m.Payload, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		confirmed = &protocol.BookingConfirmed{}
		env.DecodePayload(confirmed)
		if env.Dst.Station != "shipper-7" {
			t.Errorf("dst = %+v, want requester shipper-7", env.Dst)
		}
	}
	if confirmed == nil {
		t.Fatal("no booking.confirmed queued")
	}
	if confirmed.BookingUUID != b.UUID || confirmed.VendorID != v.ID || confirmed.VendorName != "Howrah Movers" {
		t.Errorf("confirmed = %+v", confirmed)
	}

	actions := auditActions(t, eng, "booking", b.ID)
	for _, want := range []string{"created", "dispatch_started", "confirmed"} {
		if !contains(actions, want) {
			t.Errorf("booking audit %v missing %q", actions, want)
		}
	}

	if err := eng.Dispatcher().StartTrip(context.Background(), b.ID); err != nil {
		t.Fatalf("start trip: %v", err)
	}
	if err := eng.Dispatcher().CompleteTrip(context.Background(), b.ID); err != nil {
		t.Fatalf("complete trip: %v", err)
	}
	got := outbox(t, eng, topic)
	want := []string{protocol.TypeBookingUpdate, protocol.TypeBookingConfirmed, protocol.TypeBookingUpdate, protocol.TypeBookingUpdate}
	if len(got) != len(want) {
		t.Fatalf("requester outbox = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("requester outbox[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSweepWithdrawsExpiredOffer(t *testing.T) {
	eng := testEngine(t)
	v := registerVendor(t, eng, "Salt Lake Logistics")
	b := createBooking(t, eng)

	var mu sync.Mutex
	var sweeps []SweepCompletedEvent
	eng.Events.SubscribeTypes(func(evt Event) {
		mu.Lock()
		sweeps = append(sweeps, evt.Payload.(SweepCompletedEvent))
		mu.Unlock()
	}, EventSweepCompleted)

	eng.Dispatcher().Now = func() time.Time { return t0.Add(eng.AppConfig().Dispatch.OfferTTL) }
	res := eng.Sweep(context.Background())
	if res.Expired != 1 {
		t.Fatalf("expired = %d, want 1", res.Expired)
	}

	vendorMsgs := outbox(t, eng, eng.Notifier().VendorTopic(v.ID))
	if len(vendorMsgs) != 2 || vendorMsgs[1] != protocol.TypeOfferClosed {
		t.Errorf("vendor outbox = %v, want notify then closed", vendorMsgs)
	}
	got, _ := eng.DB().GetBooking(b.ID)
	if got.Status != dispatch.StatusCancelled {
		t.Errorf("status = %s, want cancelled (no other vendor)", got.Status)
	}
	if !contains(outbox(t, eng, eng.AppConfig().Messaging.RequesterTopic), protocol.TypeBookingCancelled) {
		t.Error("requester not told about cancellation")
	}
	if !contains(auditActions(t, eng, "offer", 1), dispatch.OfferExpired) {
		t.Error("offer expiry not audited")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sweeps) != 1 || sweeps[0].Expired != 1 {
		t.Errorf("sweep events = %+v", sweeps)
	}
}

func TestSetVendorDuty(t *testing.T) {
	eng := testEngine(t)
	v := registerVendor(t, eng, "Dum Dum Carriers")
	ctx := context.Background()

	if err := eng.SetVendorDuty(ctx, v.ID, directory.Out, "admin"); err != nil {
		t.Fatalf("off duty: %v", err)
	}
	if err := eng.SetVendorDuty(ctx, v.ID, directory.In, "admin"); err != nil {
		t.Fatalf("on duty: %v", err)
	}
	createBooking(t, eng)

	if err := eng.SetVendorDuty(ctx, v.ID, directory.Out, "admin"); !errors.Is(err, directory.ErrVendorBusy) {
		t.Errorf("off duty while requested err = %v, want ErrVendorBusy", err)
	}
	actions := auditActions(t, eng, "vendor", v.ID)
	if len(actions) != 3 {
		t.Errorf("vendor audit = %v, want registered + 2 availability", actions)
	}
}

func TestStartStop(t *testing.T) {
	eng := testEngine(t)
	eng.Start()
	eng.Stop()
	eng.Stop()
	if h := eng.Health(); !h["database"] {
		t.Errorf("health = %v, want database up", h)
	}
}

func TestEventBusSubscribeFromCallback(t *testing.T) {
	bus := NewEventBus()
	late := 0
	bus.Subscribe(func(e Event) {
		if e.Type == EventBookingCreated {
			bus.Subscribe(func(Event) { late++ })
		}
	})
	bus.Emit(Event{Type: EventBookingCreated})
	bus.Emit(Event{Type: EventBookingConfirmed})

	if late != 1 {
		t.Errorf("late subscriber saw %d events, want 1", late)
	}
}
