package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'verifier', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS properties (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    type                TEXT NOT NULL CHECK (type IN ('residential', 'commercial', 'agricultural', 'industrial')),
    size                REAL NOT NULL CHECK (size > 0),
    address             TEXT NOT NULL,
    area                TEXT NOT NULL,
    city                TEXT NOT NULL,
    lat                 REAL,
    lng                 REAL,
    owner_id            INTEGER NOT NULL REFERENCES users(id),
    price               REAL NOT NULL CHECK (price >= 0),
    status              TEXT NOT NULL DEFAULT 'available'
                        CHECK (status IN ('available', 'pending_transfer', 'transferred', 'registered')),
    verification_status TEXT NOT NULL DEFAULT 'unverified'
                        CHECK (verification_status IN ('unverified', 'pending', 'verified')),
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_properties_owner ON properties(owner_id);

CREATE TABLE IF NOT EXISTS property_history (
    id           INTEGER PRIMARY KEY,
    property_id  TEXT NOT NULL REFERENCES properties(id),
    action       TEXT NOT NULL,
    performed_by INTEGER NOT NULL,
    ref_id       TEXT,
    details      TEXT,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_property_history_property ON property_history(property_id, id);

-- A transfer changes ownership at most once.
CREATE UNIQUE INDEX IF NOT EXISTS idx_property_history_transfer_completed
    ON property_history(ref_id) WHERE action = 'transfer_completed';

CREATE TABLE IF NOT EXISTS transfers (
    id                     TEXT PRIMARY KEY,
    property_id            TEXT NOT NULL REFERENCES properties(id),
    from_owner_id          INTEGER NOT NULL REFERENCES users(id),
    to_owner_id            INTEGER NOT NULL REFERENCES users(id),
    to_name                TEXT NOT NULL,
    to_identification      TEXT NOT NULL,
    to_contact             TEXT NOT NULL,
    status                 TEXT NOT NULL DEFAULT 'pending'
                           CHECK (status IN ('pending', 'processing', 'completed', 'rejected')),
    transfer_reason        TEXT NOT NULL,
    agreement_date         DATETIME NOT NULL,
    transfer_amount        REAL,
    payment_method         TEXT,
    payment_transaction_id TEXT,
    payment_amount         REAL,
    payment_paid_at        DATETIME,
    payment_confirmed_at   DATETIME,
    transfer_date          DATETIME,
    rejection_reason       TEXT,
    created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (from_owner_id <> to_owner_id)
);

-- At most one open transfer per property.
CREATE UNIQUE INDEX IF NOT EXISTS idx_transfers_active_property
    ON transfers(property_id) WHERE status IN ('pending', 'processing');

CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_owner_id);
CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_owner_id);

CREATE TABLE IF NOT EXISTS transfer_approvals (
    transfer_id   TEXT NOT NULL REFERENCES transfers(id),
    role          TEXT NOT NULL CHECK (role IN ('seller', 'buyer', 'verifier')),
    approved      INTEGER NOT NULL DEFAULT 1,
    signature_url TEXT,
    approved_by   INTEGER NOT NULL REFERENCES users(id),
    approved_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (transfer_id, role)
);

CREATE TABLE IF NOT EXISTS verifications (
    id                       TEXT PRIMARY KEY,
    property_id              TEXT NOT NULL REFERENCES properties(id),
    verifier_id              INTEGER NOT NULL REFERENCES users(id),
    submitted_by             INTEGER NOT NULL REFERENCES users(id),
    status                   TEXT NOT NULL DEFAULT 'pending'
                             CHECK (status IN ('pending', 'verified', 'rejected')),
    ls_number                TEXT NOT NULL,
    page_number              TEXT NOT NULL,
    volume_number            TEXT NOT NULL,
    lawyer_id                TEXT,
    comments                 TEXT,
    signature_url            TEXT,
    signature_at             DATETIME,
    survey_valid             INTEGER NOT NULL DEFAULT 0,
    survey_notes             TEXT,
    survey_verified_at       DATETIME,
    title_valid              INTEGER NOT NULL DEFAULT 0,
    title_notes              TEXT,
    title_verified_at        DATETIME,
    tax_clearance            INTEGER NOT NULL DEFAULT 0,
    tax_notes                TEXT,
    tax_verified_at          DATETIME,
    verification_date        DATETIME,
    created_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_verifications_ls_number ON verifications(ls_number);
CREATE INDEX IF NOT EXISTS idx_verifications_property ON verifications(property_id, created_at);

CREATE TABLE IF NOT EXISTS verification_history (
    id              INTEGER PRIMARY KEY,
    verification_id TEXT NOT NULL REFERENCES verifications(id),
    action          TEXT NOT NULL,
    performed_by    INTEGER NOT NULL,
    ref_id          TEXT,
    details         TEXT,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_verification_history_verification
    ON verification_history(verification_id, id);

CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    parent_kind TEXT NOT NULL CHECK (parent_kind IN ('property', 'transfer', 'verification')),
    parent_id   TEXT NOT NULL,
    name        TEXT NOT NULL,
    type        TEXT NOT NULL,
    url         TEXT NOT NULL,
    public_id   TEXT NOT NULL,
    uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_kind, parent_id);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
