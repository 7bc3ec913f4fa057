package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/golovatskygroup/mcp-toolkit/internal/config"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

// ParseDSN maps a store connection string to a driver and its native DSN.
// Accepted forms: sqlite://<path>, file:<path> and mysql://<go-sql-driver DSN>.
func ParseDSN(dsn string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite dsn has no path")
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(dsn, "file:"):
		return DialectSQLite, dsn, nil
	case strings.HasPrefix(dsn, "mysql://"):
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
		if err != nil {
			return "", "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return DialectMySQL, cfg.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported store dsn %q: want sqlite://, file: or mysql://", redact(dsn))
	}
}

// Open selects the backend configured by cfg. The SQL backend is used when
// cfg.Persistent is set; otherwise descriptors live in cfg.Dir.
func Open(ctx context.Context, cfg config.StoreConfig) (tool.Store, error) {
	if !cfg.Persistent {
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dir", s.Dir()).Msg("using local tool store")
		return s, nil
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, config.ErrMissingDSN
	}
	dialect, dsn, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s database: %w", dialect, err)
	}

	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("dialect", string(dialect)).Msg("using persistent tool store")
	return s, nil
}

func redact(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		return "***" + dsn[at:]
	}
	return dsn
}
