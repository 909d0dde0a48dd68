package messaging

import (
	"fmt"
	"strconv"

	"github.com/Devloperheera/test.digittrasway-sub003/protocol"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

// OutboxNotifier delivers vendor-facing messages through the outbox so a
// broker outage never blocks dispatch.
type OutboxNotifier struct {
	db          *store.DB
	stationID   string
	topicPrefix string
}

func NewOutboxNotifier(db *store.DB, stationID, vendorTopicPrefix string) *OutboxNotifier {
	return &OutboxNotifier{db: db, stationID: stationID, topicPrefix: vendorTopicPrefix}
}

// VendorTopic is the per-vendor topic offers are published on.
func (n *OutboxNotifier) VendorTopic(vendorID int64) string {
	return n.topicPrefix + "." + strconv.FormatInt(vendorID, 10)
}

// NotifyVendor queues an offer.notify that expires with the offer.
func (n *OutboxNotifier) NotifyVendor(vendorID, offerID int64) error {
	o, err := n.db.GetOffer(offerID)
	if err != nil {
		return fmt.Errorf("load offer %d: %w", offerID, err)
	}
	b, err := n.db.GetBooking(o.BookingID)
	if err != nil {
		return fmt.Errorf("load booking %d: %w", o.BookingID, err)
	}
	env, err := protocol.NewEnvelope(protocol.TypeOfferNotify, n.coreAddr(), n.vendorAddr(vendorID), &protocol.OfferNotify{
		OfferID:       o.ID,
		BookingUUID:   b.UUID,
		Sequence:      o.Sequence,
		PickupLat:     b.PickupLat,
		PickupLng:     b.PickupLng,
		PickupAddress: b.PickupAddress,
		DropAddress:   b.DropAddress,
		Material:      b.Material,
		WeightKg:      b.WeightKg,
		DistanceKm:    o.DistanceKm,
		ExpiresAt:     o.ExpiresAt,
	}, protocol.Expires(o.ExpiresAt))
	if err != nil {
		return fmt.Errorf("build offer notify: %w", err)
	}
	return n.enqueue(vendorID, env)
}

// CloseOffer tells a vendor an offer it did not answer is gone.
func (n *OutboxNotifier) CloseOffer(vendorID, offerID int64, status string) error {
	env, err := protocol.NewEnvelope(protocol.TypeOfferClosed, n.coreAddr(), n.vendorAddr(vendorID),
		&protocol.OfferClosed{OfferID: offerID, Status: status})
	if err != nil {
		return fmt.Errorf("build offer closed: %w", err)
	}
	return n.enqueue(vendorID, env)
}

func (n *OutboxNotifier) enqueue(vendorID int64, env *protocol.Envelope) error {
	return EnqueueEnvelope(n.db, n.VendorTopic(vendorID), strconv.FormatInt(vendorID, 10), env)
}

func (n *OutboxNotifier) coreAddr() protocol.Address {
	return protocol.Address{Role: protocol.RoleCore, Station: n.stationID}
}

func (n *OutboxNotifier) vendorAddr(vendorID int64) protocol.Address {
	return protocol.Address{Role: protocol.RoleVendor, Station: strconv.FormatInt(vendorID, 10)}
}
