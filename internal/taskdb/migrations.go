package taskdb

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    labels TEXT,
    depends_on TEXT,
    status TEXT NOT NULL DEFAULT 'open',
    has_pr BOOLEAN DEFAULT FALSE,
    artifact_ref TEXT,
    source_ref TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    attempted INTEGER DEFAULT 0,
    succeeded INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    deferred INTEGER DEFAULT 0,
    total_cost REAL DEFAULT 0,
    halt_reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    task_id TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    cost_usd REAL DEFAULT 0,
    duration_secs REAL DEFAULT 0,
    artifact_ref TEXT,
    detail TEXT,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_outcomes_session_id ON outcomes(session_id);
`
