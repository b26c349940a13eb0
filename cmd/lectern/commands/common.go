package commands

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lectern-ai/lectern/internal/db"
	"github.com/lectern-ai/lectern/internal/store"
	"github.com/lectern-ai/lectern/internal/summarize"
)

// openStorage opens the database, applies migrations, and returns both the
// storage facade and the raw handle for closing.
func openStorage() (*store.SQLiteStore, *sql.DB, error) {
	path := dbPath
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
	}

	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.ApplyMigrations(sqlDB, slog.Default()); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return store.NewSQLiteStore(sqlDB), sqlDB, nil
}

// parseKind maps the --kind flag onto a summary kind.
func parseKind(kind string) (summarize.Kind, error) {
	switch kind {
	case "", string(summarize.KindChat):
		return summarize.KindChat, nil
	case string(summarize.KindBook):
		return summarize.KindBook, nil
	default:
		return "", fmt.Errorf("unknown kind %q (chat or book)", kind)
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
