package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/ledgerclear/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the SQLite database and ensures the reconciliation schema
// exists. The identity-key uniqueness constraint on transactions is the
// storage-level safety net against concurrent ingestion of the same source
// event: SQLite treats NULLs as distinct, so rows without a source
// reference never collide.
func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if _, err := DB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		stdlog.Fatalf("failed to enable foreign keys: %v", err)
	}

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		account_id TEXT NOT NULL,
		source TEXT NOT NULL,
		source_reference TEXT,
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		execution_date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		merchant_hint TEXT NOT NULL DEFAULT '',
		reconciliation_status TEXT NOT NULL DEFAULT 'not_reconciled',
		reconciled_with_transaction_id INTEGER REFERENCES transactions(id),
		raw_source_data TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, source, source_reference)
	);

	CREATE TABLE IF NOT EXISTS pending_duplicates (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		source_reference TEXT,
		new_transaction_data TEXT NOT NULL,
		existing_transaction_id INTEGER,
		existing_transaction_data TEXT,
		similarity_score INTEGER NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolution TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		resolved_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS prevented_duplicates (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		existing_transaction_id INTEGER,
		blocked_transaction_data TEXT NOT NULL,
		source TEXT NOT NULL,
		source_reference TEXT,
		similarity_score INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, execution_date);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_status
		ON transactions(user_id, reconciliation_status);
	CREATE INDEX IF NOT EXISTS idx_pending_user_unresolved
		ON pending_duplicates(user_id, resolved);
	CREATE INDEX IF NOT EXISTS idx_prevented_user
		ON prevented_duplicates(user_id);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateTransactionsTable adds columns introduced after the first schema
// shipped. Purely additive so existing ledgers survive upgrades.
func migrateTransactionsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return // table will be created with the current schema
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'transactions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'transactions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'transactions': %v", err)
		}
		return
	}

	if _, ok := columnExists["merchant_hint"]; !ok {
		if _, err := DB.Exec("ALTER TABLE transactions ADD COLUMN merchant_hint TEXT NOT NULL DEFAULT ''"); err != nil {
			logger.L.Error("Error adding 'merchant_hint' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'merchant_hint' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["raw_source_data"]; !ok {
		if _, err := DB.Exec("ALTER TABLE transactions ADD COLUMN raw_source_data TEXT"); err != nil {
			logger.L.Error("Error adding 'raw_source_data' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'raw_source_data' column to 'transactions' table")
		}
	}
}
