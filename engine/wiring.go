package engine

import (
	"fmt"

	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/messaging"
	"github.com/Devloperheera/test.digittrasway-sub003/protocol"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

func (e *Engine) wireEventHandlers() {
	// Booking created: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(BookingCreatedEvent)
		e.audit("booking", ev.BookingID, "created", "", "requester "+ev.RequesterID)
	}, EventBookingCreated)

	// Dispatch started: audit and tell the requester we are searching
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DispatchStartedEvent)
		e.audit("booking", ev.BookingID, "dispatch_started", dispatch.StatusPending, fmt.Sprintf("%d candidates", ev.Candidates))
		e.sendBookingUpdate(ev.BookingID, dispatch.StatusSearching, "looking for a vendor")
	}, EventDispatchStarted)

	// Offers: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OfferCreatedEvent)
		e.audit("offer", ev.OfferID, "created", "", fmt.Sprintf("booking %d vendor %d seq %d", ev.BookingID, ev.VendorID, ev.Sequence))
	}, EventOfferCreated)

	// Offer resolved: audit; withdraw it from the vendor if they never answered
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OfferResolvedEvent)
		e.audit("offer", ev.OfferID, ev.Status, dispatch.OfferPending, fmt.Sprintf("booking %d vendor %d", ev.BookingID, ev.VendorID))
		switch ev.Status {
		case dispatch.OfferExpired, dispatch.OfferCancelled:
			if err := e.notifier.CloseOffer(ev.VendorID, ev.OfferID, ev.Status); err != nil {
				e.logFn("engine: withdraw offer %d from vendor %d: %v", ev.OfferID, ev.VendorID, err)
			}
		}
	}, EventOfferResolved)

	// Confirmed: audit and notify requester
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(BookingConfirmedEvent)
		e.logFn("engine: booking %d confirmed with vendor %d", ev.BookingID, ev.VendorID)
		e.audit("booking", ev.BookingID, "confirmed", dispatch.StatusSearching, fmt.Sprintf("vendor %d", ev.VendorID))
		e.sendBookingConfirmed(ev)
	}, EventBookingConfirmed)

	// Cancelled: audit and notify requester
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(BookingCancelledEvent)
		e.logFn("engine: booking %d cancelled: %s", ev.BookingID, ev.Reason)
		e.audit("booking", ev.BookingID, "cancelled", "", ev.Reason)
		e.sendToRequester(ev.BookingID, protocol.TypeBookingCancelled, func(uuid string) any {
			return &protocol.BookingCancelled{BookingUUID: uuid, Reason: ev.Reason}
		})
	}, EventBookingCancelled)

	// Trip lifecycle: audit and notify requester
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(BookingStatusChangedEvent)
		e.audit("booking", ev.BookingID, "status", ev.OldStatus, ev.NewStatus)
		e.sendBookingUpdate(ev.BookingID, ev.NewStatus, "")
	}, EventBookingStatusChanged)

	// Stalled: the sweeper retries after the grace period
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DispatchStalledEvent)
		e.logFn("engine: booking %d stalled: %s", ev.BookingID, ev.Detail)
		e.audit("booking", ev.BookingID, "stalled", "", ev.Detail)
	}, EventDispatchStalled)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(InvariantViolationEvent)
		e.logFn("engine: ERROR booking %d: %s", ev.BookingID, ev.Detail)
		e.audit("booking", ev.BookingID, "invariant_violation", "", ev.Detail)
	}, EventInvariantViolation)

	// Vendor changes: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(VendorUpdatedEvent)
		entry := &store.AuditEntry{
			EntityType: "vendor",
			EntityID:   ev.VendorID,
			Action:     ev.Action,
			NewValue:   ev.Availability,
			Actor:      ev.Actor,
		}
		if err := e.db.AppendAudit(entry); err != nil {
			e.logFn("engine: audit vendor %d: %v", ev.VendorID, err)
		}
	}, EventVendorUpdated)
}

func (e *Engine) audit(entity string, id int64, action, oldValue, newValue string) {
	entry := &store.AuditEntry{
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if err := e.db.AppendAudit(entry); err != nil {
		e.logFn("engine: audit %s %d %s: %v", entity, id, action, err)
	}
}

func (e *Engine) sendBookingUpdate(bookingID int64, status, detail string) {
	e.sendToRequester(bookingID, protocol.TypeBookingUpdate, func(uuid string) any {
		return &protocol.BookingUpdate{BookingUUID: uuid, Status: status, Detail: detail}
	})
}

func (e *Engine) sendBookingConfirmed(ev BookingConfirmedEvent) {
	p := &protocol.BookingConfirmed{VendorID: ev.VendorID}
	if v, err := e.db.GetVendor(ev.VendorID); err == nil {
		p.VendorName = v.Name
		p.VendorPhone = v.Phone
	}
	e.sendToRequester(ev.BookingID, protocol.TypeBookingConfirmed, func(uuid string) any {
		p.BookingUUID = uuid
		return p
	})
}

// sendToRequester queues a message for the booking's requester. build
// receives the booking's public UUID.
func (e *Engine) sendToRequester(bookingID int64, msgType string, build func(uuid string) any) {
	b, err := e.db.GetBooking(bookingID)
	if err != nil {
		e.logFn("engine: get booking %d for %s: %v", bookingID, msgType, err)
		return
	}
	env, err := protocol.NewEnvelope(msgType,
		protocol.Address{Role: protocol.RoleCore, Station: e.cfg.Messaging.StationID},
		protocol.Address{Role: protocol.RoleRequester, Station: b.RequesterID},
		build(b.UUID),
	)
	if err != nil {
		e.logFn("engine: build %s: %v", msgType, err)
		return
	}
	if err := messaging.EnqueueEnvelope(e.db, e.cfg.Messaging.RequesterTopic, b.RequesterID, env); err != nil {
		e.logFn("engine: enqueue %s for booking %d: %v", msgType, bookingID, err)
	}
}
