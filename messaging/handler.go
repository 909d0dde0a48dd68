package messaging

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/protocol"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

const handlerTimeout = 15 * time.Second

// InboundHandler handles requester and vendor messages on the bookings
// topic and hands them to the dispatcher.
type InboundHandler struct {
	protocol.NoOpHandler

	db             *store.DB
	dir            *directory.Manager
	dispatcher     *dispatch.Dispatcher
	stationID      string
	requesterTopic string
}

func NewInboundHandler(db *store.DB, dir *directory.Manager, dispatcher *dispatch.Dispatcher, stationID, requesterTopic string) *InboundHandler {
	return &InboundHandler{
		db:             db,
		dir:            dir,
		dispatcher:     dispatcher,
		stationID:      stationID,
		requesterTopic: requesterTopic,
	}
}

func (h *InboundHandler) HandleBookingRequest(env *protocol.Envelope, p *protocol.BookingRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	requester := p.RequesterID
	if requester == "" {
		requester = env.Src.Station
	}
	b, err := h.dispatcher.CreateBooking(ctx, dispatch.NewBooking{
		RequesterID:   requester,
		PickupLat:     p.PickupLat,
		PickupLng:     p.PickupLng,
		PickupAddress: p.PickupAddress,
		DropLat:       p.DropLat,
		DropLng:       p.DropLng,
		DropAddress:   p.DropAddress,
		Material:      p.Material,
		VehicleType:   p.VehicleType,
		WeightKg:      p.WeightKg,
		QuotedPrice:   p.QuotedPrice,
	})

	ack := &protocol.BookingAck{RequestID: p.RequestID}
	if b != nil {
		ack.BookingID = b.ID
		ack.BookingUUID = b.UUID
		ack.Status = b.Status
	}
	if err != nil {
		log.Printf("inbound: booking request %s: %v", p.RequestID, err)
		ack.Error = err.Error()
	}

	reply, rerr := protocol.NewEnvelope(protocol.TypeBookingAck, h.coreAddr(),
		protocol.Address{Role: protocol.RoleRequester, Station: requester}, ack, protocol.InReplyTo(env.ID))
	if rerr != nil {
		log.Printf("inbound: build booking ack: %v", rerr)
		return
	}
	if err := EnqueueEnvelope(h.db, h.requesterTopic, requester, reply); err != nil {
		log.Printf("inbound: enqueue booking ack: %v", err)
	}
}

func (h *InboundHandler) HandleBookingCancel(env *protocol.Envelope, p *protocol.BookingCancel) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	b, err := h.db.GetBookingByUUID(p.BookingUUID)
	if err != nil {
		log.Printf("inbound: cancel for unknown booking %s: %v", p.BookingUUID, err)
		return
	}
	if env.Src.Role == protocol.RoleRequester && env.Src.Station != b.RequesterID {
		log.Printf("inbound: requester %s may not cancel booking %d", env.Src.Station, b.ID)
		return
	}
	reason := p.Reason
	if reason == "" {
		reason = "cancelled by requester"
	}
	if err := h.dispatcher.CancelBooking(ctx, b.ID, reason); err != nil {
		log.Printf("inbound: cancel booking %d: %v", b.ID, err)
	}
}

func (h *InboundHandler) HandleOfferResponse(env *protocol.Envelope, p *protocol.OfferResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	decision, ok := dispatch.ParseDecision(p.Decision)
	if !ok {
		log.Printf("inbound: offer %d: unknown decision %q", p.OfferID, p.Decision)
		return
	}
	o, err := h.db.GetOffer(p.OfferID)
	if err != nil {
		log.Printf("inbound: response for unknown offer %d: %v", p.OfferID, err)
		return
	}
	if o.VendorID != p.VendorID {
		log.Printf("inbound: vendor %d answered offer %d held by vendor %d", p.VendorID, o.ID, o.VendorID)
		return
	}

	err = h.dispatcher.Respond(ctx, o.ID, decision)
	switch {
	case err == nil:
		log.Printf("inbound: vendor %d %sed offer %d", p.VendorID, decision, o.ID)
	case errors.Is(err, dispatch.ErrInvalidState), errors.Is(err, dispatch.ErrExpired):
		log.Printf("inbound: offer %d already closed: %v", o.ID, err)
	default:
		log.Printf("inbound: respond to offer %d: %v", o.ID, err)
	}
}

// HandleVendorStatus lets a vendor app toggle duty and report position.
// requested and booked are owned by dispatch and are never set here.
func (h *InboundHandler) HandleVendorStatus(env *protocol.Envelope, p *protocol.VendorStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if p.Lat != nil && p.Lng != nil {
		if err := h.dir.UpdatePosition(ctx, p.VendorID, *p.Lat, *p.Lng); err != nil {
			log.Printf("inbound: vendor %d position: %v", p.VendorID, err)
			return
		}
	}
	if p.Availability == "" {
		return
	}
	if err := h.dir.SetDuty(ctx, p.VendorID, p.Availability); err != nil {
		log.Printf("inbound: vendor %d availability %s: %v", p.VendorID, p.Availability, err)
	}
}

func (h *InboundHandler) coreAddr() protocol.Address {
	return protocol.Address{Role: protocol.RoleCore, Station: h.stationID}
}
