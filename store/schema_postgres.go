package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS vendors (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    phone        TEXT NOT NULL DEFAULT '',
    vehicle_type TEXT NOT NULL DEFAULT '',
    capacity_kg  DOUBLE PRECISION NOT NULL DEFAULT 0,
    lat          DOUBLE PRECISION NOT NULL DEFAULT 0,
    lng          DOUBLE PRECISION NOT NULL DEFAULT 0,
    availability TEXT NOT NULL DEFAULT 'out',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vendors_availability ON vendors(availability);

CREATE TABLE IF NOT EXISTS bookings (
    id                 BIGSERIAL PRIMARY KEY,
    uuid               TEXT NOT NULL UNIQUE,
    requester_id       TEXT NOT NULL DEFAULT '',
    pickup_lat         DOUBLE PRECISION NOT NULL DEFAULT 0,
    pickup_lng         DOUBLE PRECISION NOT NULL DEFAULT 0,
    pickup_address     TEXT NOT NULL DEFAULT '',
    drop_lat           DOUBLE PRECISION NOT NULL DEFAULT 0,
    drop_lng           DOUBLE PRECISION NOT NULL DEFAULT 0,
    drop_address       TEXT NOT NULL DEFAULT '',
    material           TEXT NOT NULL DEFAULT '',
    vehicle_type       TEXT NOT NULL DEFAULT '',
    weight_kg          DOUBLE PRECISION NOT NULL DEFAULT 0,
    status             TEXT NOT NULL DEFAULT 'pending',
    assigned_vendor_id BIGINT REFERENCES vendors(id),
    cancel_reason      TEXT NOT NULL DEFAULT '',
    quoted_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
    final_price        DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_dispatch_at   TIMESTAMPTZ,
    confirmed_at       TIMESTAMPTZ,
    completed_at       TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);

CREATE TABLE IF NOT EXISTS booking_history (
    id          BIGSERIAL PRIMARY KEY,
    booking_id  BIGINT NOT NULL REFERENCES bookings(id),
    status      TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_booking_history_booking ON booking_history(booking_id);

CREATE TABLE IF NOT EXISTS offers (
    id           BIGSERIAL PRIMARY KEY,
    booking_id   BIGINT NOT NULL REFERENCES bookings(id),
    vendor_id    BIGINT NOT NULL REFERENCES vendors(id),
    sequence     INTEGER NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    distance_km  DOUBLE PRECISION NOT NULL DEFAULT 0,
    sent_at      TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    responded_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_one_pending ON offers(booking_id) WHERE status = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_sequence ON offers(booking_id, sequence);
CREATE INDEX IF NOT EXISTS idx_offers_expiry ON offers(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_offers_vendor ON offers(vendor_id);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    msg_key     TEXT NOT NULL DEFAULT '',
    msg_type    TEXT NOT NULL DEFAULT '',
    payload     BYTEA NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT '',
    expires_at  TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ,
    dropped_at  TIMESTAMPTZ,
    drop_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(id) WHERE sent_at IS NULL AND dropped_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   BIGINT NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);

CREATE TABLE IF NOT EXISTS operators (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    last_login_at TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
