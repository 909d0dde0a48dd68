package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS vendors (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL,
    phone        TEXT NOT NULL DEFAULT '',
    vehicle_type TEXT NOT NULL DEFAULT '',
    capacity_kg  REAL NOT NULL DEFAULT 0,
    lat          REAL NOT NULL DEFAULT 0,
    lng          REAL NOT NULL DEFAULT 0,
    availability TEXT NOT NULL DEFAULT 'out',
    created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
    updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
);
CREATE INDEX IF NOT EXISTS idx_vendors_availability ON vendors(availability);

CREATE TABLE IF NOT EXISTS bookings (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid               TEXT NOT NULL UNIQUE,
    requester_id       TEXT NOT NULL DEFAULT '',
    pickup_lat         REAL NOT NULL DEFAULT 0,
    pickup_lng         REAL NOT NULL DEFAULT 0,
    pickup_address     TEXT NOT NULL DEFAULT '',
    drop_lat           REAL NOT NULL DEFAULT 0,
    drop_lng           REAL NOT NULL DEFAULT 0,
    drop_address       TEXT NOT NULL DEFAULT '',
    material           TEXT NOT NULL DEFAULT '',
    vehicle_type       TEXT NOT NULL DEFAULT '',
    weight_kg          REAL NOT NULL DEFAULT 0,
    status             TEXT NOT NULL DEFAULT 'pending',
    assigned_vendor_id INTEGER REFERENCES vendors(id),
    cancel_reason      TEXT NOT NULL DEFAULT '',
    quoted_price       REAL NOT NULL DEFAULT 0,
    final_price        REAL NOT NULL DEFAULT 0,
    last_dispatch_at   TEXT,
    confirmed_at       TEXT,
    completed_at       TEXT,
    created_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
    updated_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
);
CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);

CREATE TABLE IF NOT EXISTS booking_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    booking_id  INTEGER NOT NULL REFERENCES bookings(id),
    status      TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
);
CREATE INDEX IF NOT EXISTS idx_booking_history_booking ON booking_history(booking_id);

CREATE TABLE IF NOT EXISTS offers (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    booking_id   INTEGER NOT NULL REFERENCES bookings(id),
    vendor_id    INTEGER NOT NULL REFERENCES vendors(id),
    sequence     INTEGER NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    distance_km  REAL NOT NULL DEFAULT 0,
    sent_at      TEXT NOT NULL,
    expires_at   TEXT NOT NULL,
    responded_at TEXT,
    created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_one_pending ON offers(booking_id) WHERE status = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_sequence ON offers(booking_id, sequence);
CREATE INDEX IF NOT EXISTS idx_offers_expiry ON offers(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_offers_vendor ON offers(vendor_id);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    msg_key     TEXT NOT NULL DEFAULT '',
    msg_type    TEXT NOT NULL DEFAULT '',
    payload     BLOB NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT '',
    expires_at  TEXT,
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
    sent_at     TEXT,
    dropped_at  TEXT,
    drop_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(id) WHERE sent_at IS NULL AND dropped_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   INTEGER NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);

CREATE TABLE IF NOT EXISTS operators (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    last_login_at TEXT,
    created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
    updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
);
`
