package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/protocol"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "msg.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type published struct {
	topic   string
	key     string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) PublishKeyed(topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic, key, payload})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func enqueue(t *testing.T, db *store.DB, topic, key string, exp *time.Time) *store.OutboxMessage {
	t.Helper()
	m := &store.OutboxMessage{Topic: topic, Key: key, MsgType: "x", Payload: []byte(topic), ExpiresAt: exp}
	if err := db.EnqueueOutbox(m); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return m
}

type nopEmitter struct{}

func (nopEmitter) EmitBookingCreated(int64, string, string)             {}
func (nopEmitter) EmitDispatchStarted(int64, int)                       {}
func (nopEmitter) EmitOfferCreated(int64, int64, int64, int, time.Time) {}
func (nopEmitter) EmitOfferResolved(int64, int64, int64, string)        {}
func (nopEmitter) EmitBookingConfirmed(int64, int64)                    {}
func (nopEmitter) EmitBookingCancelled(int64, string)                   {}
func (nopEmitter) EmitBookingStatusChanged(int64, string, string)       {}
func (nopEmitter) EmitDispatchStalled(int64, string)                    {}
func (nopEmitter) EmitInvariantViolation(int64, string)                 {}

func TestDrainPublishesInOrderWithKeys(t *testing.T) {
	db := testDB(t)
	enqueue(t, db, "a", "7", nil)
	enqueue(t, db, "b", "shipper-1", nil)

	pub := &fakePublisher{}
	d := NewOutboxDrainer(db, pub, time.Second)
	if n := d.drain(); n != 2 {
		t.Fatalf("sent = %d, want 2", n)
	}
	if pub.sent[0].topic != "a" || pub.sent[0].key != "7" || pub.sent[1].key != "shipper-1" {
		t.Errorf("published = %+v", pub.sent)
	}
	pending, _ := db.ListPendingOutbox(time.Now(), 10)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestDrainRetriesThenGivesUp(t *testing.T) {
	db := testDB(t)
	enqueue(t, db, "a", "1", nil)
	enqueue(t, db, "b", "1", nil)

	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewOutboxDrainer(db, pub, time.Second)
	d.drain()

	// the second message waits behind the first
	pending, _ := db.ListPendingOutbox(time.Now(), 10)
	if len(pending) != 2 || pending[0].Attempts != 1 || pending[1].Attempts != 0 {
		t.Fatalf("pending = %+v, want first with 1 attempt, second untouched", pending)
	}
	if pending[0].LastError != "broker down" {
		t.Errorf("last error = %q", pending[0].LastError)
	}

	for i := 1; i < maxPublishAttempts; i++ {
		d.drain()
	}
	pub.err = nil
	if n := d.drain(); n != 1 {
		t.Fatalf("sent = %d after giving up on the first, want 1", n)
	}
	if pub.sent[0].topic != "b" {
		t.Errorf("published = %+v, want only b", pub.sent)
	}
	backlog, _ := db.CountOutbox()
	if backlog.Pending != 0 || backlog.Dropped != 1 {
		t.Errorf("backlog = %+v", backlog)
	}
}

func TestDrainSkipsExpiredMessages(t *testing.T) {
	db := testDB(t)
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	stale := now.Add(-time.Second)
	fresh := now.Add(time.Minute)
	enqueue(t, db, "stale", "1", &stale)
	enqueue(t, db, "fresh", "1", &fresh)

	pub := &fakePublisher{}
	d := NewOutboxDrainer(db, pub, time.Second)
	d.Now = func() time.Time { return now }
	if n := d.drain(); n != 1 || pub.sent[0].topic != "fresh" {
		t.Fatalf("sent %d: %+v, want only fresh", n, pub.sent)
	}
	backlog, _ := db.CountOutbox()
	if backlog.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", backlog.Dropped)
	}
}

func TestDrainerStartStop(t *testing.T) {
	db := testDB(t)
	enqueue(t, db, "a", "1", nil)

	pub := &fakePublisher{}
	d := NewOutboxDrainer(db, pub, 10*time.Millisecond)
	d.Start()
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	d.Stop()
	d.Stop()
	if pub.count() != 1 {
		t.Errorf("published = %d, want 1", pub.count())
	}
}

// harness wires a dispatcher to the outbox notifier and inbound handler.
type harness struct {
	db       *store.DB
	dir      *directory.Manager
	d        *dispatch.Dispatcher
	notifier *OutboxNotifier
	ingestor *protocol.Ingestor
	msgCfg   config.MessagingConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testDB(t)
	cfg := config.Defaults()
	dir := directory.NewManager(db, nil)
	n := NewOutboxNotifier(db, cfg.Messaging.StationID, cfg.Messaging.VendorTopicPrefix)
	d := dispatch.NewDispatcher(db, dir, nopEmitter{}, n, cfg.Dispatch)
	h := NewInboundHandler(db, dir, d, cfg.Messaging.StationID, cfg.Messaging.RequesterTopic)
	return &harness{
		db:       db,
		dir:      dir,
		d:        d,
		notifier: n,
		ingestor: protocol.NewIngestor(h, protocol.CoreFilter),
		msgCfg:   cfg.Messaging,
	}
}

const pickupLat, pickupLng = 28.6139, 77.2090

func (h *harness) vendor(t *testing.T, name string, availability string) *store.Vendor {
	t.Helper()
	v := &store.Vendor{Name: name, VehicleType: "open-body", CapacityKg: 5000,
		Lat: pickupLat + 0.01, Lng: pickupLng, Availability: availability}
	if err := h.dir.RegisterVendor(context.Background(), v); err != nil {
		t.Fatalf("register vendor: %v", err)
	}
	return v
}

func (h *harness) send(t *testing.T, msgType string, src protocol.Address, payload any) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, src, protocol.Address{Role: protocol.RoleCore, Station: "core"}, payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	data, _ := env.Encode()
	h.ingestor.HandleRaw(data)
	return env
}

// queued returns decoded pending outbox envelopes on a topic.
func (h *harness) queued(t *testing.T, topic string) []*protocol.Envelope {
	t.Helper()
	msgs, err := h.db.ListPendingOutbox(time.Now(), 100)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	var out []*protocol.Envelope
	for _, m := range msgs {
		if m.Topic != topic {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(m.Payload, &env); err != nil {
			t.Fatalf("decode outbox %d: %v", m.ID, err)
		}
		out = append(out, &env)
	}
	return out
}

func TestBookingRequestOverTheWire(t *testing.T) {
	h := newHarness(t)
	v := h.vendor(t, "Ravi Transport", directory.In)
	requester := protocol.Address{Role: protocol.RoleRequester, Station: "shipper-1"}

	req := h.send(t, protocol.TypeBookingRequest, requester, &protocol.BookingRequest{
		RequestID: "r-1",
		PickupLat: pickupLat, PickupLng: pickupLng,
		DropLat: 28.4595, DropLng: 77.0266,
		VehicleType: "open-body", WeightKg: 1200,
	})

	acks := h.queued(t, h.msgCfg.RequesterTopic)
	if len(acks) != 1 || acks[0].Type != protocol.TypeBookingAck {
		t.Fatalf("requester messages = %+v, want one booking.ack", acks)
	}
	if acks[0].CorID != req.ID {
		t.Errorf("ack cor = %q, want %q", acks[0].CorID, req.ID)
	}
	var ack protocol.BookingAck
	acks[0].DecodePayload(&ack)
	if ack.Status != dispatch.StatusSearching || ack.Error != "" {
		t.Fatalf("ack = %+v, want searching with no error", ack)
	}
	b, err := h.db.GetBookingByUUID(ack.BookingUUID)
	if err != nil {
		t.Fatalf("booking by uuid: %v", err)
	}
	if b.RequesterID != "shipper-1" {
		t.Errorf("requester = %q, want shipper-1 from the envelope source", b.RequesterID)
	}

	notes := h.queued(t, h.notifier.VendorTopic(v.ID))
	if len(notes) != 1 || notes[0].Type != protocol.TypeOfferNotify {
		t.Fatalf("vendor messages = %+v, want one offer.notify", notes)
	}
	var n protocol.OfferNotify
	notes[0].DecodePayload(&n)
	o, _ := h.db.PendingOfferForBooking(b.ID)
	if o == nil || n.OfferID != o.ID || n.BookingUUID != b.UUID {
		t.Fatalf("notify = %+v, pending offer = %+v", n, o)
	}
	if !notes[0].ExpiresAt.Equal(o.ExpiresAt) {
		t.Errorf("notify exp = %v, want offer expiry %v", notes[0].ExpiresAt, o.ExpiresAt)
	}

	vendorSrc := protocol.Address{Role: protocol.RoleVendor, Station: strconv.FormatInt(v.ID, 10)}

	// a different vendor cannot answer this offer
	h.send(t, protocol.TypeOfferResponse, vendorSrc, &protocol.OfferResponse{OfferID: o.ID, VendorID: v.ID + 100, Decision: "accept"})
	if got, _ := h.db.GetBooking(b.ID); got.Status != dispatch.StatusSearching {
		t.Fatalf("status after foreign answer = %s, want searching_vendor", got.Status)
	}

	h.send(t, protocol.TypeOfferResponse, vendorSrc, &protocol.OfferResponse{OfferID: o.ID, VendorID: v.ID, Decision: "accept"})
	got, _ := h.db.GetBooking(b.ID)
	if got.Status != dispatch.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	if got.AssignedVendorID == nil || *got.AssignedVendorID != v.ID {
		t.Errorf("assigned vendor = %v, want %d", got.AssignedVendorID, v.ID)
	}
	vv, _ := h.db.GetVendor(v.ID)
	if vv.Availability != directory.Booked {
		t.Errorf("vendor availability = %s, want booked", vv.Availability)
	}
}

func TestBookingRequestWithNoVendorsIsCancelled(t *testing.T) {
	h := newHarness(t)
	h.send(t, protocol.TypeBookingRequest, protocol.Address{Role: protocol.RoleRequester, Station: "s"},
		&protocol.BookingRequest{RequestID: "r-2", PickupLat: pickupLat, PickupLng: pickupLng, WeightKg: 100})

	acks := h.queued(t, h.msgCfg.RequesterTopic)
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack protocol.BookingAck
	acks[0].DecodePayload(&ack)
	if ack.Status != dispatch.StatusCancelled {
		t.Errorf("ack status = %s, want cancelled", ack.Status)
	}
}

func TestBookingCancelOnlyByOwner(t *testing.T) {
	h := newHarness(t)
	h.vendor(t, "v", directory.In)
	b, err := h.d.CreateBooking(context.Background(), dispatch.NewBooking{
		RequesterID: "owner", PickupLat: pickupLat, PickupLng: pickupLng, WeightKg: 100,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.send(t, protocol.TypeBookingCancel, protocol.Address{Role: protocol.RoleRequester, Station: "intruder"},
		&protocol.BookingCancel{BookingUUID: b.UUID})
	if got, _ := h.db.GetBooking(b.ID); got.Status != dispatch.StatusSearching {
		t.Fatalf("status = %s after foreign cancel, want searching_vendor", got.Status)
	}

	h.send(t, protocol.TypeBookingCancel, protocol.Address{Role: protocol.RoleRequester, Station: "owner"},
		&protocol.BookingCancel{BookingUUID: b.UUID, Reason: "plans changed"})
	got, _ := h.db.GetBooking(b.ID)
	if got.Status != dispatch.StatusCancelled || got.CancelReason != "plans changed" {
		t.Errorf("booking = %s/%q, want cancelled/plans changed", got.Status, got.CancelReason)
	}
}

func TestVendorStatusTogglesDutyAndPosition(t *testing.T) {
	h := newHarness(t)
	v := h.vendor(t, "v", directory.Out)
	src := protocol.Address{Role: protocol.RoleVendor, Station: strconv.FormatInt(v.ID, 10)}

	lat, lng := 28.70, 77.10
	h.send(t, protocol.TypeVendorStatus, src, &protocol.VendorStatus{VendorID: v.ID, Availability: directory.In, Lat: &lat, Lng: &lng})
	got, _ := h.db.GetVendor(v.ID)
	if got.Availability != directory.In || got.Lat != lat || got.Lng != lng {
		t.Fatalf("vendor = %+v", got)
	}

	// requested/booked are never accepted from the wire
	h.send(t, protocol.TypeVendorStatus, src, &protocol.VendorStatus{VendorID: v.ID, Availability: directory.Booked})
	got, _ = h.db.GetVendor(v.ID)
	if got.Availability != directory.In {
		t.Errorf("availability = %s, want in", got.Availability)
	}
}

func TestCloseOfferQueuesWithdrawal(t *testing.T) {
	h := newHarness(t)
	if err := h.notifier.CloseOffer(7, 42, dispatch.OfferExpired); err != nil {
		t.Fatalf("close: %v", err)
	}
	msgs := h.queued(t, h.msgCfg.VendorTopicPrefix+".7")
	if len(msgs) != 1 || msgs[0].Type != protocol.TypeOfferClosed {
		t.Fatalf("messages = %+v", msgs)
	}
	var p protocol.OfferClosed
	msgs[0].DecodePayload(&p)
	if p.OfferID != 42 || p.Status != dispatch.OfferExpired {
		t.Errorf("payload = %+v", p)
	}
}

func TestMQTTTopicUsesLevels(t *testing.T) {
	if got := mqttTopic("truckdispatch.vendor.7"); got != "truckdispatch/vendor/7" {
		t.Errorf("mqttTopic = %q", got)
	}
}

func TestClientWithoutConnectionRefusesPublish(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "kafka"})
	if c.IsConnected() {
		t.Fatal("new client reports connected")
	}
	if err := c.PublishKeyed("t", "k", []byte("x")); err == nil {
		t.Fatal("publish before connect succeeded")
	}
	// subscription is remembered for a later reconnect
	if err := c.Subscribe("t", func(string, []byte) {}); err == nil {
		t.Fatal("subscribe before connect succeeded")
	}
	if len(c.snapshotHandlers()) != 1 {
		t.Fatal("handler not retained")
	}
	if err := NewClient(&config.MessagingConfig{Backend: "amqp"}).Connect(); err == nil {
		t.Fatal("unknown backend accepted")
	}
}
