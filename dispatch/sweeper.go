package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// SweepResult counts what one sweep pass did.
type SweepResult struct {
	Expired   int `json:"expired"`
	Skipped   int `json:"skipped"`
	Advanced  int `json:"advanced"`
	Retried   int `json:"retried"`
	Reclaimed int `json:"reclaimed"`
	Failed    int `json:"failed"`
}

// Sweeper expires overdue offers, retries bookings that were left
// searching with no open offer, and returns vendors stranded in requested
// or booked to the pool. It reads only persisted rows, so it is safe to
// start against a database written by a previous process.
type Sweeper struct {
	d        *Dispatcher
	interval time.Duration
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once

	// OnSweep, if set before Start, receives every periodic result.
	OnSweep func(SweepResult)
}

func NewSweeper(d *Dispatcher, interval time.Duration) *Sweeper {
	return &Sweeper{
		d:        d,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			res := s.Sweep(context.Background(), s.d.Now())
			if res.Expired+res.Retried+res.Reclaimed+res.Failed > 0 {
				log.Printf("sweeper: expired=%d skipped=%d advanced=%d retried=%d reclaimed=%d failed=%d",
					res.Expired, res.Skipped, res.Advanced, res.Retried, res.Reclaimed, res.Failed)
			}
			if s.OnSweep != nil {
				s.OnSweep(res)
			}
		}
	}
}

// Sweep runs one pass as of now. Offers that a concurrent response
// resolved first are skipped.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SweepResult
	d := s.d

	// vendors whose availability no longer matches the ledger
	released, err := d.db.ReleaseOrphanedVendors(now.Add(-d.cfg.StuckGrace), now)
	if err != nil {
		log.Printf("sweeper: release orphaned vendors: %v", err)
		res.Failed++
	}
	for _, id := range released {
		log.Printf("sweeper: vendor %d held no offer or trip, returned to pool", id)
		d.syncVendor(ctx, id)
	}
	res.Reclaimed = len(released)

	overdue, err := d.db.ListOverdueOffers(now)
	if err != nil {
		log.Printf("sweeper: list overdue offers: %v", err)
		res.Failed++
		return res
	}
	for _, o := range overdue {
		ok, err := d.db.ExpireOffer(o.ID, now)
		if err != nil {
			log.Printf("sweeper: expire offer %d: %v", o.ID, err)
			res.Failed++
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}
		res.Expired++
		log.Printf("sweeper: offer %d to vendor %d expired (booking %d)", o.ID, o.VendorID, o.BookingID)
		d.emitter.EmitOfferResolved(o.ID, o.BookingID, o.VendorID, OfferExpired)
		d.syncVendor(ctx, o.VendorID)

		if err := d.advance(ctx, o.BookingID, now); err != nil {
			s.report(o.BookingID, err)
			res.Failed++
			continue
		}
		res.Advanced++
	}

	stuck, err := d.db.ListStuckBookings(now.Add(-d.cfg.StuckGrace))
	if err != nil {
		log.Printf("sweeper: list stuck bookings: %v", err)
		res.Failed++
		return res
	}
	for _, b := range stuck {
		log.Printf("sweeper: retrying stuck booking %d", b.ID)
		if err := d.advance(ctx, b.ID, now); err != nil {
			s.report(b.ID, err)
			res.Failed++
			continue
		}
		res.Retried++
	}
	return res
}

func (s *Sweeper) report(bookingID int64, err error) {
	switch {
	case errors.Is(err, ErrConflictingOffer):
		// already logged at ERROR by the dispatcher
		return
	case errors.Is(err, ErrInvalidState):
		log.Printf("sweeper: booking %d moved on concurrently: %v", bookingID, err)
		return
	}
	log.Printf("sweeper: advance booking %d: %v", bookingID, err)
}
