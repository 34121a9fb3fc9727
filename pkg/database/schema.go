package database

// Schema creates every table the decision engine persists. One table per
// entity, children reference the decision with ON DELETE CASCADE so deleting a
// decision removes its whole tree.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL,
    phase TEXT NOT NULL DEFAULT 'constraints'
        CHECK (phase IN ('constraints', 'options', 'voting', 'locked')),
    lock_time TIMESTAMPTZ NOT NULL,
    mechanism TEXT NOT NULL CHECK (mechanism IN ('point_allocation', 'forced_ranking')),
    max_options INTEGER NOT NULL CHECK (max_options >= 2),
    option_submission TEXT NOT NULL CHECK (option_submission IN ('anyone', 'organizer_only')),
    reveal_votes_after_lock BOOLEAN NOT NULL DEFAULT FALSE,
    silent_voting BOOLEAN NOT NULL DEFAULT FALSE,
    constraint_weighting BOOLEAN NOT NULL DEFAULT FALSE,
    locked_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_decisions_phase_lock_time ON decisions(phase, lock_time);

CREATE TABLE IF NOT EXISTS members (
    decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('organizer', 'member')),
    has_voted BOOLEAN NOT NULL DEFAULT FALSE,
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (decision_id, user_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_members_single_organizer
    ON members(decision_id) WHERE role = 'organizer';
CREATE INDEX IF NOT EXISTS idx_members_user_id ON members(user_id);

CREATE TABLE IF NOT EXISTS decision_constraints (
    id TEXT PRIMARY KEY,
    decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('budget_max', 'date_range', 'distance', 'duration', 'exclusion')),
    value JSONB NOT NULL,
    weight INTEGER CHECK (weight BETWEEN 1 AND 5),
    seq BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_constraints_decision_id ON decision_constraints(decision_id);

CREATE TABLE IF NOT EXISTS options (
    id TEXT PRIMARY KEY,
    decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    metadata JSONB NOT NULL DEFAULT '{}',
    passes_constraints BOOLEAN NOT NULL,
    violations JSONB NOT NULL DEFAULT '[]',
    seq BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_options_decision_id ON options(decision_id);

CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    option_id TEXT NOT NULL REFERENCES options(id) ON DELETE CASCADE,
    value INTEGER NOT NULL,
    seq BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (decision_id, user_id, option_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_decision_id ON votes(decision_id);

CREATE TABLE IF NOT EXISTS results (
    decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    option_id TEXT NOT NULL REFERENCES options(id) ON DELETE CASCADE,
    total_points INTEGER NOT NULL,
    average_rank DOUBLE PRECISION,
    rank INTEGER NOT NULL,
    is_winner BOOLEAN NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (decision_id, option_id)
);

CREATE TABLE IF NOT EXISTS advance_votes (
    decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    from_phase TEXT NOT NULL CHECK (from_phase IN ('constraints', 'options')),
    user_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (decision_id, from_phase, user_id)
);

CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    parent_id TEXT REFERENCES comments(id) ON DELETE CASCADE,
    body TEXT NOT NULL,
    seq BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_comments_decision_id ON comments(decision_id);
`

// DropSchema removes every table created by Schema
const DropSchema = `
DROP TABLE IF EXISTS comments CASCADE;
DROP TABLE IF EXISTS advance_votes CASCADE;
DROP TABLE IF EXISTS results CASCADE;
DROP TABLE IF EXISTS votes CASCADE;
DROP TABLE IF EXISTS options CASCADE;
DROP TABLE IF EXISTS decision_constraints CASCADE;
DROP TABLE IF EXISTS members CASCADE;
DROP TABLE IF EXISTS decisions CASCADE;
`
