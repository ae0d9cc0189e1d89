// Package store persists usage edges in SQLite, one table per archive
// version. A versions table maps each version to its table and records
// whether its last index run completed.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/morozRed/classlens/internal/workers"
)

// ErrUnavailable wraps every failure to open or talk to the database.
var ErrUnavailable = errors.New("usage store unavailable")

type Config struct {
	// Path of the database file. The parent directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Lease is how long a run claimed with Begin survives without
	// renewal, for example after its process died. Default: 1m
	Lease time.Duration

	Logger *slog.Logger
}

// Jobs that claim a version through Begin.
const (
	JobIndex  = "index"
	JobExport = "export"
)

const DefaultLease = time.Minute

// Edge is one stored (subject, locator) row.
type Edge struct {
	Subject string `json:"subject"`
	Locator string `json:"locator"`
}

// VersionInfo describes one indexed version.
type VersionInfo struct {
	Version   string    `json:"version"`
	Table     string    `json:"table"`
	Complete  bool      `json:"complete"`
	Edges     int       `json:"edges"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
	lease  time.Duration

	tablesMu sync.Mutex
	tables   map[string]string // version -> table name
}

const baseSchema = `
	CREATE TABLE IF NOT EXISTS versions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		version    TEXT NOT NULL UNIQUE,
		complete   INTEGER NOT NULL DEFAULT 0,
		edges      INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS runs (
		version    TEXT NOT NULL,
		job        TEXT NOT NULL,
		owner      TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (version, job)
	);
`

func tableSchema(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			subject TEXT NOT NULL,
			locator TEXT NOT NULL,
			PRIMARY KEY (subject, locator)
		) WITHOUT ROWID;
	`, table)
}

// Open creates or opens the database and discovers existing version
// tables.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrUnavailable)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	lease := cfg.Lease
	if lease <= 0 {
		lease = DefaultLease
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrUnavailable, cfg.Path, err)
	}

	s := &Store{
		pool:   pool,
		logger: logger,
		path:   cfg.Path,
		lease:  lease,
		tables: make(map[string]string),
	}
	if err := s.discover(); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("usage store opened", "path", cfg.Path, "versions", len(s.tables))
	return s, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: take connection: %w", ErrUnavailable, err)
	}
	return conn, nil
}

func (s *Store) discover() error {
	conn, err := s.take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, baseSchema, nil); err != nil {
		return fmt.Errorf("%w: creating schema: %w", ErrUnavailable, err)
	}
	return sqlitex.Execute(conn, "SELECT id, version FROM versions", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			s.tables[stmt.ColumnText(1)] = tableName(stmt.ColumnInt64(0))
			return nil
		},
	})
}

func tableName(id int64) string {
	return fmt.Sprintf("usages_%d", id)
}

// ensure returns the version's table, creating it on first use. It
// runs outside any transaction so a rolled back write never leaves a
// table registered here but missing on disk.
func (s *Store) ensure(conn *sqlite.Conn, version string) (string, error) {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()

	if table, ok := s.tables[version]; ok {
		return table, nil
	}
	err := sqlitex.Execute(conn, "INSERT OR IGNORE INTO versions (version, updated_at) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{version, time.Now().Unix()},
	})
	if err != nil {
		return "", fmt.Errorf("failed to register version %s: %w", version, err)
	}
	var id int64
	err = sqlitex.Execute(conn, "SELECT id FROM versions WHERE version = ?", &sqlitex.ExecOptions{
		Args: []any{version},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up version %s: %w", version, err)
	}
	table := tableName(id)
	if err := sqlitex.ExecuteScript(conn, tableSchema(table), nil); err != nil {
		return "", fmt.Errorf("failed to create table %s: %w", table, err)
	}
	s.tables[version] = table
	s.logger.Debug("usage table created", "version", version, "table", table)
	return table, nil
}

func (s *Store) lookupTable(version string) (string, bool) {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	table, ok := s.tables[version]
	return table, ok
}

// Clear empties the version's table and marks it incomplete.
func (s *Store) Clear(ctx context.Context, version string) (err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	table, err := s.ensure(conn, version)
	if err != nil {
		return err
	}

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn, "DELETE FROM "+table, nil); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return sqlitex.Execute(conn, "UPDATE versions SET complete = 0, edges = 0, updated_at = ? WHERE version = ?", &sqlitex.ExecOptions{
		Args: []any{time.Now().Unix(), version},
	})
}

// Put writes a batch of subject -> locators in one transaction.
// Existing rows are left as they are.
func (s *Store) Put(ctx context.Context, version string, batch map[string]map[string]struct{}) (err error) {
	if len(batch) == 0 {
		return nil
	}
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	table, err := s.ensure(conn, version)
	if err != nil {
		return err
	}

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	defer endTransaction(&err)

	stmt, err := conn.Prepare("INSERT OR IGNORE INTO " + table + " (subject, locator) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Reset() }()
	for subject, locators := range batch {
		for locator := range locators {
			stmt.BindText(1, subject)
			stmt.BindText(2, locator)
			if _, err := stmt.Step(); err != nil {
				return fmt.Errorf("failed to insert usage %s: %w", subject, err)
			}
			if err := stmt.Reset(); err != nil {
				return fmt.Errorf("failed to reset insert: %w", err)
			}
		}
	}
	return nil
}

// Lookup returns the locators recorded for subject, sorted. An unknown
// version has no usages.
func (s *Store) Lookup(ctx context.Context, version, subject string) ([]string, error) {
	table, ok := s.lookupTable(version)
	if !ok {
		return []string{}, nil
	}
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	locators := make([]string, 0)
	err = sqlitex.Execute(conn, "SELECT locator FROM "+table+" WHERE subject = ? ORDER BY locator", &sqlitex.ExecOptions{
		Args: []any{subject},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			locators = append(locators, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query usages of %s: %w", subject, err)
	}
	return locators, nil
}

// Edges returns every row of the version's table ordered by subject
// and locator.
func (s *Store) Edges(ctx context.Context, version string) ([]Edge, error) {
	table, ok := s.lookupTable(version)
	if !ok {
		return []Edge{}, nil
	}
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	edges := make([]Edge, 0)
	err = sqlitex.Execute(conn, "SELECT subject, locator FROM "+table+" ORDER BY subject, locator", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			edges = append(edges, Edge{Subject: stmt.ColumnText(0), Locator: stmt.ColumnText(1)})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list usages: %w", err)
	}
	return edges, nil
}

// MarkComplete records a finished index run with its edge count.
func (s *Store) MarkComplete(ctx context.Context, version string) error {
	table, ok := s.lookupTable(version)
	if !ok {
		return fmt.Errorf("unknown version %s", version)
	}
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var edges int64
	err = sqlitex.Execute(conn, "SELECT count(*) FROM "+table, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			edges = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to count usages: %w", err)
	}
	return sqlitex.Execute(conn, "UPDATE versions SET complete = 1, edges = ?, updated_at = ? WHERE version = ?", &sqlitex.ExecOptions{
		Args: []any{edges, time.Now().Unix(), version},
	})
}

// Complete reports whether the version's last index run finished.
func (s *Store) Complete(ctx context.Context, version string) (bool, error) {
	if _, ok := s.lookupTable(version); !ok {
		return false, nil
	}
	conn, err := s.take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	complete := false
	err = sqlitex.Execute(conn, "SELECT complete FROM versions WHERE version = ?", &sqlitex.ExecOptions{
		Args: []any{version},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			complete = stmt.ColumnInt64(0) != 0
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to read version state: %w", err)
	}
	return complete, nil
}

// Begin claims version for one run of job across every process sharing
// the database. A live claim held by another run fails with
// workers.ErrBusy; an expired one is taken over. The claim is renewed
// until release is called.
func (s *Store) Begin(ctx context.Context, version, job string) (release func(), err error) {
	owner := fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())

	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	err = s.claim(conn, version, job, owner)
	s.pool.Put(conn)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("run claimed", "version", version, "job", job, "owner", owner)

	stop := make(chan struct{})
	done := make(chan struct{})
	go s.renew(version, job, owner, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := s.unclaim(version, job, owner); err != nil {
				s.logger.Warn("failed to release run", "version", version, "job", job, "error", err)
			}
		})
	}, nil
}

func (s *Store) claim(conn *sqlite.Conn, version, job, owner string) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	defer endTransaction(&err)

	now := time.Now()
	var (
		holder  string
		expires int64
		held    bool
	)
	err = sqlitex.Execute(conn, "SELECT owner, expires_at FROM runs WHERE version = ? AND job = ?", &sqlitex.ExecOptions{
		Args: []any{version, job},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			holder, expires, held = stmt.ColumnText(0), stmt.ColumnInt64(1), true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to read runs of %s: %w", version, err)
	}
	if held && expires > now.UnixMilli() {
		return fmt.Errorf("%w: %s of %s held by %s", workers.ErrBusy, job, version, holder)
	}
	if held {
		s.logger.Warn("taking over expired run", "version", version, "job", job, "owner", holder)
	}
	return sqlitex.Execute(conn, "INSERT OR REPLACE INTO runs (version, job, owner, expires_at) VALUES (?, ?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{version, job, owner, now.Add(s.lease).UnixMilli()},
	})
}

func (s *Store) renew(version, job, owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(s.lease/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		err := s.exec("UPDATE runs SET expires_at = ? WHERE version = ? AND job = ? AND owner = ?",
			time.Now().Add(s.lease).UnixMilli(), version, job, owner)
		if err != nil {
			s.logger.Warn("failed to renew run", "version", version, "job", job, "error", err)
		}
	}
}

func (s *Store) unclaim(version, job, owner string) error {
	return s.exec("DELETE FROM runs WHERE version = ? AND job = ? AND owner = ?", version, job, owner)
}

func (s *Store) exec(query string, args ...any) error {
	conn, err := s.take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
}

// Drop removes the version's table and registration.
func (s *Store) Drop(ctx context.Context, version string) (err error) {
	s.tablesMu.Lock()
	table, ok := s.tables[version]
	s.tablesMu.Unlock()
	if !ok {
		return nil
	}

	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn, "DROP TABLE IF EXISTS "+table, nil); err != nil {
		return fmt.Errorf("failed to drop %s: %w", table, err)
	}
	if err := sqlitex.Execute(conn, "DELETE FROM versions WHERE version = ?", &sqlitex.ExecOptions{Args: []any{version}}); err != nil {
		return fmt.Errorf("failed to unregister %s: %w", version, err)
	}

	s.tablesMu.Lock()
	delete(s.tables, version)
	s.tablesMu.Unlock()
	return nil
}

// Versions lists registered versions ordered by name.
func (s *Store) Versions(ctx context.Context) ([]VersionInfo, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	infos := make([]VersionInfo, 0)
	err = sqlitex.Execute(conn, "SELECT id, version, complete, edges, updated_at FROM versions", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			infos = append(infos, VersionInfo{
				Table:     tableName(stmt.ColumnInt64(0)),
				Version:   stmt.ColumnText(1),
				Complete:  stmt.ColumnInt64(2) != 0,
				Edges:     int(stmt.ColumnInt64(3)),
				UpdatedAt: time.Unix(stmt.ColumnInt64(4), 0).UTC(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Version < infos[j].Version })
	return infos, nil
}

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("failed to close usage store %s: %w", s.path, err)
	}
	s.logger.Info("usage store closed", "path", s.path)
	return nil
}
