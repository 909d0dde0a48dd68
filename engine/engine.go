package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/dispatch"
	"github.com/Devloperheera/test.digittrasway-sub003/messaging"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

type LogFunc func(format string, args ...any)

const healthInterval = 30 * time.Second

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Directory  *directory.Manager
	Redis      *directory.RedisStore // optional, health only
	MsgClient  *messaging.Client     // optional
	LogFunc    LogFunc
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	dir        *directory.Manager
	redis      *directory.RedisStore
	msgClient  *messaging.Client
	notifier   *messaging.OutboxNotifier
	dispatcher *dispatch.Dispatcher
	sweeper    *dispatch.Sweeper
	Events     *EventBus
	logFn      LogFunc

	stopChan chan struct{}
	stopOnce sync.Once

	connMu       sync.Mutex
	dirConnected bool
	msgConnected bool
}

// New builds the dispatcher and sweeper and wires event handlers. Nothing
// runs in the background until Start.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		dir:        c.Directory,
		redis:      c.Redis,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		logFn:      logFn,
		stopChan:   make(chan struct{}),
	}

	e.notifier = messaging.NewOutboxNotifier(e.db, e.cfg.Messaging.StationID, e.cfg.Messaging.VendorTopicPrefix)
	e.dispatcher = dispatch.NewDispatcher(
		e.db,
		e.dir,
		&dispatchEmitter{bus: e.Events},
		e.notifier,
		e.cfg.Dispatch,
	)
	e.sweeper = dispatch.NewSweeper(e.dispatcher, e.cfg.Dispatch.SweepInterval)
	e.sweeper.OnSweep = e.emitSweep

	e.wireEventHandlers()
	return e
}

func (e *Engine) Start() {
	e.sweeper.Start()

	e.checkConnectionStatus()
	go e.connectionHealthLoop()

	e.logFn("engine: started (offer ttl %s, sweep every %s)", e.cfg.Dispatch.OfferTTL, e.cfg.Dispatch.SweepInterval)
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.sweeper.Stop()
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                       { return e.db }
func (e *Engine) AppConfig() *config.Config           { return e.cfg }
func (e *Engine) ConfigPath() string                  { return e.configPath }
func (e *Engine) Dispatcher() *dispatch.Dispatcher    { return e.dispatcher }
func (e *Engine) Directory() *directory.Manager       { return e.dir }
func (e *Engine) Notifier() *messaging.OutboxNotifier { return e.notifier }
func (e *Engine) MsgClient() *messaging.Client        { return e.msgClient }

// Sweep runs one expiry pass now, outside the ticker.
func (e *Engine) Sweep(ctx context.Context) dispatch.SweepResult {
	res := e.sweeper.Sweep(ctx, e.dispatcher.Now())
	e.emitSweep(res)
	return res
}

func (e *Engine) emitSweep(res dispatch.SweepResult) {
	e.Events.Emit(Event{Type: EventSweepCompleted, Payload: SweepCompletedEvent{
		Expired:   res.Expired,
		Advanced:  res.Advanced,
		Retried:   res.Retried,
		Reclaimed: res.Reclaimed,
		Failed:    res.Failed,
	}})
}

// RegisterVendor adds a vendor to the directory.
func (e *Engine) RegisterVendor(ctx context.Context, v *store.Vendor, actor string) error {
	if err := e.dir.RegisterVendor(ctx, v); err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventVendorUpdated, Payload: VendorUpdatedEvent{
		VendorID: v.ID, Availability: v.Availability, Action: "registered", Actor: actor,
	}})
	return nil
}

// SetVendorDuty puts a vendor on or off duty. Vendors holding an offer or
// trip are refused with directory.ErrVendorBusy.
func (e *Engine) SetVendorDuty(ctx context.Context, vendorID int64, state, actor string) error {
	if err := e.dir.SetDuty(ctx, vendorID, state); err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventVendorUpdated, Payload: VendorUpdatedEvent{
		VendorID: vendorID, Availability: state, Action: "availability", Actor: actor,
	}})
	return nil
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if e.msgClient == nil {
		return
	}
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured")
	}
	e.checkConnectionStatus()
}

// Health reports subsystem connectivity as last observed.
func (e *Engine) Health() map[string]bool {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	return map[string]bool{
		"database":  e.db.Ping() == nil,
		"directory": e.dirConnected,
		"messaging": e.msgConnected,
	}
}

func (e *Engine) checkConnectionStatus() {
	e.connMu.Lock()
	defer e.connMu.Unlock()

	if e.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := e.redis.Ping(ctx)
		cancel()
		if err == nil {
			if !e.dirConnected {
				e.dirConnected = true
				e.Events.Emit(Event{Type: EventDirectoryConnected, Payload: ConnectionEvent{Detail: "redis connected"}})
			}
		} else if e.dirConnected {
			e.dirConnected = false
			e.Events.Emit(Event{Type: EventDirectoryDisconnected, Payload: ConnectionEvent{Detail: err.Error()}})
		}
	}

	if e.msgClient != nil {
		if e.msgClient.IsConnected() {
			if !e.msgConnected {
				e.msgConnected = true
				e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
			}
		} else if e.msgConnected {
			e.msgConnected = false
			e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
		}
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}
