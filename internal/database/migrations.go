package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_init",
		Up: `
-- Current supervisor state (single row)
CREATE TABLE server_status (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    state TEXT NOT NULL,                -- 'stopped', 'starting', 'running', 'stopping'
    pid INTEGER,
    generation TEXT,
    last_started DATETIME,
    last_stopped DATETIME,
    last_exit_code INTEGER,
    last_exit_expected BOOLEAN,
    error_message TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Resource samples (raw data, pruned by retention)
CREATE TABLE server_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    pid INTEGER NOT NULL,
    cpu_percent REAL NOT NULL,          -- one logical core = 100
    memory_bytes INTEGER NOT NULL,      -- resident set size
    player_count INTEGER DEFAULT 0
);

CREATE INDEX idx_metrics_time ON server_metrics(timestamp DESC);

-- Activity log (lifecycle and operator actions)
CREATE TABLE activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    actor TEXT,
    activity_type TEXT NOT NULL,        -- 'server.start', 'command.execute', ...
    description TEXT,
    metadata TEXT,                      -- JSON for additional context
    success BOOLEAN DEFAULT 1,
    error_message TEXT
);

CREATE INDEX idx_activity_time ON activity_log(timestamp DESC);
CREATE INDEX idx_activity_type_time ON activity_log(activity_type, timestamp DESC);
`,
	},
	{
		Version: "002_console",
		Up: `
-- Console command history
CREATE TABLE IF NOT EXISTS console_commands (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    actor TEXT NOT NULL,
    command TEXT NOT NULL,
    executed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    success BOOLEAN DEFAULT 1,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_console_commands_executed ON console_commands(executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_console_commands_actor ON console_commands(actor, executed_at DESC);
`,
	},
	{
		Version: "003_player_sessions",
		Up: `
-- Player presence derived from console output
CREATE TABLE IF NOT EXISTS player_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    player TEXT NOT NULL,
    generation TEXT NOT NULL,
    joined_at TIMESTAMP NOT NULL,
    left_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_player_sessions_open ON player_sessions(player, left_at);
CREATE INDEX IF NOT EXISTS idx_player_sessions_joined ON player_sessions(joined_at DESC);
`,
	},
	{
		Version: "004_backups",
		Up: `
-- World backups and where they were stored
CREATE TABLE IF NOT EXISTS backups (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    destination_type TEXT NOT NULL,
    destination_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,               -- 'creating', 'completed', 'failed', 'deleted'
    error_message TEXT,
    metadata TEXT,                      -- JSON: paths, file count, compression
    created_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_backups_created ON backups(created_at DESC);
`,
	},
}
