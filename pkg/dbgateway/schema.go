package dbgateway

// schemaDDL lays out the tables named in spec §6, flattened from their
// dotted "schema.table" notation (auth.users -> auth_users) since SQLite has
// no schema namespaces.
const schemaDDL = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS auth_users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS auth_refresh_tokens (
    token TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES auth_users(id),
    expires_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_active_sessions (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    pod_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_active DATETIME DEFAULT CURRENT_TIMESTAMP,
    expires_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_active_sessions_user ON session_active_sessions(user_id);

CREATE TABLE IF NOT EXISTS session_session_metadata (
    session_id TEXT PRIMARY KEY REFERENCES session_active_sessions(session_id),
    device_id TEXT,
    simulator_id TEXT,
    simulator_status TEXT,
    simulator_endpoint TEXT,
    ip_address TEXT,
    connection_quality TEXT,
    heartbeat_latency_ms INTEGER DEFAULT 0,
    missed_heartbeats INTEGER DEFAULT 0,
    reconnect_count INTEGER DEFAULT 0,
    termination_reason TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS simulator_instances (
    simulator_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    endpoint TEXT NOT NULL DEFAULT '',
    pod_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    termination_reason TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_active DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_simulator_instances_session ON simulator_instances(session_id);

CREATE TABLE IF NOT EXISTS trading_orders (
    order_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    type TEXT NOT NULL,
    quantity REAL NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    filled_quantity REAL NOT NULL DEFAULT 0,
    avg_price REAL NOT NULL DEFAULT 0,
    request_id TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trading_orders_user ON trading_orders(user_id);

CREATE TABLE IF NOT EXISTS trading_request_idempotency (
    user_id TEXT NOT NULL,
    request_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    response_json TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, request_id, domain)
);

CREATE TABLE IF NOT EXISTS exch_us_equity_equity_data (
    symbol TEXT NOT NULL,
    ts_utc DATETIME NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume REAL NOT NULL,
    vwap REAL NOT NULL,
    PRIMARY KEY (symbol, ts_utc)
);

CREATE TABLE IF NOT EXISTS exch_us_equity_fx_data (
    pair TEXT NOT NULL,
    ts_utc DATETIME NOT NULL,
    rate REAL NOT NULL,
    PRIMARY KEY (pair, ts_utc)
);

CREATE TABLE IF NOT EXISTS exch_us_equity_cash_flow_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts_utc DATETIME NOT NULL,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    from_account TEXT NOT NULL DEFAULT '',
    from_currency TEXT NOT NULL DEFAULT '',
    from_fx TEXT NOT NULL DEFAULT '1',
    from_amount TEXT NOT NULL DEFAULT '0',
    to_account TEXT NOT NULL DEFAULT '',
    to_currency TEXT NOT NULL DEFAULT '',
    to_fx TEXT NOT NULL DEFAULT '1',
    to_amount TEXT NOT NULL DEFAULT '0',
    instrument TEXT NOT NULL DEFAULT '',
    trade_id TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    encoded BLOB
);
CREATE INDEX IF NOT EXISTS idx_cash_flow_user ON exch_us_equity_cash_flow_data(user_id);

CREATE TABLE IF NOT EXISTS ledger_accounts (
    user_id TEXT NOT NULL,
    label TEXT NOT NULL,
    currency TEXT NOT NULL,
    balance TEXT NOT NULL DEFAULT '0',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, label, currency)
);

CREATE TABLE IF NOT EXISTS orchestrator_exchanges (
    exch_id TEXT PRIMARY KEY,
    timezone TEXT NOT NULL,
    pre_open TEXT NOT NULL,
    open TEXT NOT NULL,
    close TEXT NOT NULL,
    post_close TEXT NOT NULL,
    symbols TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS gateway_feedback (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS gateway_funds (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS gateway_books (
    id TEXT PRIMARY KEY,
    fund_id TEXT NOT NULL REFERENCES gateway_funds(id),
    name TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
