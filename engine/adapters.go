package engine

import "time"

// dispatchEmitter bridges the dispatch package's emitter interface to the EventBus.
type dispatchEmitter struct {
	bus *EventBus
}

func (e *dispatchEmitter) EmitBookingCreated(bookingID int64, bookingUUID, requesterID string) {
	e.bus.Emit(Event{Type: EventBookingCreated, Payload: BookingCreatedEvent{
		BookingID:   bookingID,
		BookingUUID: bookingUUID,
		RequesterID: requesterID,
	}})
}

func (e *dispatchEmitter) EmitDispatchStarted(bookingID int64, candidates int) {
	e.bus.Emit(Event{Type: EventDispatchStarted, Payload: DispatchStartedEvent{
		BookingID:  bookingID,
		Candidates: candidates,
	}})
}

func (e *dispatchEmitter) EmitOfferCreated(offerID, bookingID, vendorID int64, sequence int, expiresAt time.Time) {
	e.bus.Emit(Event{Type: EventOfferCreated, Payload: OfferCreatedEvent{
		OfferID:   offerID,
		BookingID: bookingID,
		VendorID:  vendorID,
		Sequence:  sequence,
		ExpiresAt: expiresAt,
	}})
}

func (e *dispatchEmitter) EmitOfferResolved(offerID, bookingID, vendorID int64, status string) {
	e.bus.Emit(Event{Type: EventOfferResolved, Payload: OfferResolvedEvent{
		OfferID:   offerID,
		BookingID: bookingID,
		VendorID:  vendorID,
		Status:    status,
	}})
}

func (e *dispatchEmitter) EmitBookingConfirmed(bookingID, vendorID int64) {
	e.bus.Emit(Event{Type: EventBookingConfirmed, Payload: BookingConfirmedEvent{
		BookingID: bookingID,
		VendorID:  vendorID,
	}})
}

func (e *dispatchEmitter) EmitBookingCancelled(bookingID int64, reason string) {
	e.bus.Emit(Event{Type: EventBookingCancelled, Payload: BookingCancelledEvent{
		BookingID: bookingID,
		Reason:    reason,
	}})
}

func (e *dispatchEmitter) EmitBookingStatusChanged(bookingID int64, from, to string) {
	e.bus.Emit(Event{Type: EventBookingStatusChanged, Payload: BookingStatusChangedEvent{
		BookingID: bookingID,
		OldStatus: from,
		NewStatus: to,
	}})
}

func (e *dispatchEmitter) EmitDispatchStalled(bookingID int64, detail string) {
	e.bus.Emit(Event{Type: EventDispatchStalled, Payload: DispatchStalledEvent{
		BookingID: bookingID,
		Detail:    detail,
	}})
}

func (e *dispatchEmitter) EmitInvariantViolation(bookingID int64, detail string) {
	e.bus.Emit(Event{Type: EventInvariantViolation, Payload: InvariantViolationEvent{
		BookingID: bookingID,
		Detail:    detail,
	}})
}
