package database

// problems and users belong to the catalog and user directory; they are only read here.
const schema = `
CREATE TABLE IF NOT EXISTS contests (
    id                     UUID PRIMARY KEY,
    slug                   TEXT NOT NULL UNIQUE,
    title                  TEXT NOT NULL,
    description            TEXT NOT NULL DEFAULT '',
    contest_type           TEXT NOT NULL CHECK (contest_type IN ('public', 'private', 'protected')),
    mode                   TEXT NOT NULL CHECK (mode IN ('ACM', 'OI')),
    password_hash          TEXT,
    start_time             TIMESTAMPTZ NOT NULL,
    end_time               TIMESTAMPTZ NOT NULL,
    duration_minutes       INT NOT NULL CHECK (duration_minutes BETWEEN 30 AND 10080),
    created_by             TEXT NOT NULL,
    allow_view_others_code BOOLEAN NOT NULL DEFAULT FALSE,
    allow_view_ranking     BOOLEAN NOT NULL DEFAULT TRUE,
    freeze_minutes         INT NOT NULL DEFAULT 0 CHECK (freeze_minutes BETWEEN 0 AND 300),
    max_participants       INT NOT NULL DEFAULT 0,
    oi_score_policy        TEXT NOT NULL DEFAULT 'first_accepted',
    cancelled              BOOLEAN NOT NULL DEFAULT FALSE,
    version                BIGINT NOT NULL DEFAULT 1,
    total_participants     INT NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (end_time > start_time)
);

CREATE TABLE IF NOT EXISTS contest_problems (
    contest_id UUID NOT NULL REFERENCES contests(id),
    label      CHAR(1) NOT NULL CHECK (label ~ '^[A-Z]$'),
    problem_id TEXT NOT NULL,
    weight     INT,
    sort_order INT NOT NULL,
    PRIMARY KEY (contest_id, label),
    UNIQUE (contest_id, problem_id)
);

CREATE TABLE IF NOT EXISTS contest_admins (
    contest_id UUID NOT NULL REFERENCES contests(id),
    user_id    TEXT NOT NULL,
    PRIMARY KEY (contest_id, user_id)
);

CREATE TABLE IF NOT EXISTS contest_invitations (
    contest_id UUID NOT NULL REFERENCES contests(id),
    user_id    TEXT NOT NULL,
    PRIMARY KEY (contest_id, user_id)
);

CREATE TABLE IF NOT EXISTS contest_participants (
    contest_id  UUID NOT NULL REFERENCES contests(id),
    user_id     TEXT NOT NULL,
    join_time   TIMESTAMPTZ NOT NULL,
    is_official BOOLEAN NOT NULL,
    PRIMARY KEY (contest_id, user_id)
);

CREATE TABLE IF NOT EXISTS contest_submission_events (
    sequence_id   BIGINT PRIMARY KEY,
    submission_id TEXT NOT NULL,
    contest_id    UUID NOT NULL REFERENCES contests(id),
    user_id       TEXT NOT NULL,
    problem_label CHAR(1) NOT NULL,
    verdict       TEXT NOT NULL,
    score         DOUBLE PRECISION NOT NULL DEFAULT 0,
    submitted_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contest_events_order
    ON contest_submission_events (contest_id, submitted_at, sequence_id);
`
