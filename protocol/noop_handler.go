package protocol

// NoOpHandler implements MessageHandler with no-op methods.
// Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleBookingRequest(*Envelope, *BookingRequest)     {}
func (NoOpHandler) HandleBookingCancel(*Envelope, *BookingCancel)       {}
func (NoOpHandler) HandleOfferResponse(*Envelope, *OfferResponse)       {}
func (NoOpHandler) HandleVendorStatus(*Envelope, *VendorStatus)         {}
func (NoOpHandler) HandleOfferNotify(*Envelope, *OfferNotify)           {}
func (NoOpHandler) HandleOfferClosed(*Envelope, *OfferClosed)           {}
func (NoOpHandler) HandleBookingAck(*Envelope, *BookingAck)             {}
func (NoOpHandler) HandleBookingUpdate(*Envelope, *BookingUpdate)       {}
func (NoOpHandler) HandleBookingConfirmed(*Envelope, *BookingConfirmed) {}
func (NoOpHandler) HandleBookingCancelled(*Envelope, *BookingCancelled) {}

// Compile-time check that NoOpHandler implements MessageHandler.
var _ MessageHandler = NoOpHandler{}
