package db

const schema = `
CREATE TABLE IF NOT EXISTS leads (
    id                TEXT PRIMARY KEY,
    business_name     TEXT NOT NULL,
    category          TEXT NOT NULL DEFAULT '',
    neighborhood      TEXT NOT NULL DEFAULT '',
    borough           TEXT NOT NULL DEFAULT '',
    postal_code       TEXT NOT NULL DEFAULT '',
    hfi               INTEGER NOT NULL DEFAULT 0 CHECK(hfi BETWEEN 0 AND 100),
    friction_type     TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'qualified' CHECK(status IN ('qualified','ready','engaged','nurture','evaluating','sprinting','live','unqualified')),
    friction_clusters TEXT NOT NULL DEFAULT '[]',
    recency_0_30      INTEGER NOT NULL DEFAULT 0,
    recency_31_90     INTEGER NOT NULL DEFAULT 0,
    recency_90_plus   INTEGER NOT NULL DEFAULT 0,
    time_burden       TEXT NOT NULL DEFAULT '',
    website_url       TEXT,
    audit_status      TEXT NOT NULL DEFAULT 'pending' CHECK(audit_status IN ('pending','processing','completed','failed')),
    audit_violations  TEXT NOT NULL DEFAULT '[]',
    discovered_at     DATETIME DEFAULT (datetime('now')),
    created_at        DATETIME DEFAULT (datetime('now')),
    updated_at        DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_hfi ON leads(hfi);
CREATE INDEX IF NOT EXISTS idx_leads_borough ON leads(borough);

CREATE TABLE IF NOT EXISTS sprints (
    id                     TEXT PRIMARY KEY,
    lead_id                TEXT NOT NULL REFERENCES leads(id),
    active                 INTEGER NOT NULL DEFAULT 1,
    paused                 INTEGER NOT NULL DEFAULT 0,
    max_slots              INTEGER NOT NULL CHECK(max_slots BETWEEN 1 AND 4),
    duration_weeks         INTEGER NOT NULL CHECK(duration_weeks BETWEEN 2 AND 4),
    started_at             DATETIME NOT NULL,
    deadline               DATETIME NOT NULL,
    submission_window_open INTEGER NOT NULL DEFAULT 0,
    first_completion_at    DATETIME,
    voting_open            INTEGER NOT NULL DEFAULT 0,
    winner_builder_id      TEXT,
    finalized_at           DATETIME,
    terminated_at          DATETIME,
    created_at             DATETIME DEFAULT (datetime('now'))
);

-- One active sprint per lead, enforced by the store rather than application scans.
CREATE UNIQUE INDEX IF NOT EXISTS idx_sprints_active_lead ON sprints(lead_id) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_sprints_lead ON sprints(lead_id);

CREATE TABLE IF NOT EXISTS enrollments (
    id                     TEXT PRIMARY KEY,
    sprint_id              TEXT NOT NULL REFERENCES sprints(id),
    builder_id             TEXT NOT NULL,
    builder_name           TEXT NOT NULL DEFAULT '',
    active                 INTEGER NOT NULL DEFAULT 1,
    joined_at              DATETIME NOT NULL,
    checkpoints_completed  INTEGER NOT NULL DEFAULT 0,
    last_nudged_at         DATETIME,
    last_checkpoint_update DATETIME,
    flagged_at             DATETIME,
    flagged_expires_at     DATETIME,
    quality_score          REAL,
    scout_review_score     REAL,
    review_notes           TEXT,
    reviewed_at            DATETIME,
    evicted_at             DATETIME,
    evict_reason           TEXT
);

-- A builder may hold at most one active enrollment system-wide. The partial
-- index closes the race between the elsewhere-check and the join write.
CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollments_active_builder ON enrollments(builder_id) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_enrollments_sprint ON enrollments(sprint_id);

CREATE TABLE IF NOT EXISTS checkpoints (
    enrollment_id TEXT NOT NULL REFERENCES enrollments(id),
    idx           INTEGER NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','submitted','approved','rejected')),
    proof_link    TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    submitted_at  DATETIME,
    verified_at   DATETIME,
    PRIMARY KEY (enrollment_id, idx)
);

CREATE TABLE IF NOT EXISTS milestones (
    lead_id     TEXT NOT NULL REFERENCES leads(id),
    idx         INTEGER NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    weight      REAL NOT NULL DEFAULT 0.25,
    PRIMARY KEY (lead_id, idx)
);

CREATE TABLE IF NOT EXISTS votes (
    id         TEXT PRIMARY KEY,
    sprint_id  TEXT NOT NULL REFERENCES sprints(id),
    builder_id TEXT NOT NULL,
    fellow_id  TEXT NOT NULL,
    score      INTEGER NOT NULL CHECK(score BETWEEN 1 AND 5),
    created_at DATETIME DEFAULT (datetime('now')),
    UNIQUE (sprint_id, builder_id, fellow_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_sprint ON votes(sprint_id);

CREATE TABLE IF NOT EXISTS staff (
    id            TEXT PRIMARY KEY,
    handle        TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'scout' CHECK(role IN ('scout','fellow','admin')),
    created_at    DATETIME DEFAULT (datetime('now'))
);
`
