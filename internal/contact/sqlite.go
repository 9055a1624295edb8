package contact

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/artcrm/artcrm/internal/identity"
)

// SQLiteStore implements Store using modernc.org/sqlite. Locations are kept
// as plain latitude/longitude columns.
type SQLiteStore struct {
	db        *sql.DB
	opTimeout time.Duration
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opTimeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, opTimeout: opTimeout}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL,
	type                TEXT,
	subtype             TEXT,
	city                TEXT,
	country             TEXT,
	address             TEXT,
	website             TEXT,
	email               TEXT,
	phone               TEXT,
	preferred_language  TEXT NOT NULL DEFAULT 'de',
	status              TEXT NOT NULL DEFAULT 'cold',
	fit_score           INTEGER,
	success_probability INTEGER,
	best_visit_time     TEXT,
	notes               TEXT,
	latitude            REAL,
	longitude           REAL,
	name_key            TEXT,
	city_key            TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	deleted_at          DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_identity_key ON contacts(name_key, city_key);
CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts(status);
CREATE INDEX IF NOT EXISTS idx_contacts_city ON contacts(city);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Snapshot(ctx context.Context) (*Index, error) {
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT name, city, name_key, city_key FROM contacts`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot")
	}
	defer rows.Close() //nolint:errcheck

	var keys []identity.Key
	for rows.Next() {
		var name string
		var city, nameKey, cityKey sql.NullString
		if err := rows.Scan(&name, &city, &nameKey, &cityKey); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot row")
		}
		keys = append(keys, storedKey(name, city.String, nullPtr(nameKey), nullPtr(cityKey)))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot rows")
	}
	return NewIndex(keys...), nil
}

func (s *SQLiteStore) FindByKey(ctx context.Context, key identity.Key) (*Contact, error) {
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	var c Contact
	var city sql.NullString
	var deletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, city, status, name_key, city_key, deleted_at FROM contacts WHERE name_key = ? AND city_key = ? LIMIT 1`,
		key.Name, key.City,
	).Scan(&c.ID, &c.Name, &city, &c.Status, &c.NameKey, &c.CityKey, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.findUnkeyed(ctx, key)
		}
		return nil, eris.Wrapf(err, "sqlite: find contact %s", key)
	}
	c.City = city.String
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	return &c, nil
}

// findUnkeyed folds the name and city of rows written without identity keys.
func (s *SQLiteStore) findUnkeyed(ctx context.Context, key identity.Key) (*Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, city, status, deleted_at FROM contacts WHERE name_key IS NULL ORDER BY id`)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find unkeyed contact %s", key)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var c Contact
		var city sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &city, &c.Status, &deletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unkeyed contact")
		}
		c.City = city.String
		if identity.NewKey(c.Name, c.City) != key {
			continue
		}
		if deletedAt.Valid {
			c.DeletedAt = &deletedAt.Time
		}
		c.NameKey, c.CityKey = key.Name, key.City
		return &c, nil
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: unkeyed contact rows")
	}
	return nil, ErrNotFound
}

func (s *SQLiteStore) InsertLeadIfAbsent(ctx context.Context, lead Lead) (int64, bool, error) {
	if !lead.Key.Valid() {
		return 0, false, eris.Errorf("sqlite: lead %q has no identity key", lead.Name)
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	var lat, lon any
	if lead.Location != nil {
		lat, lon = lead.Location.Lat, lead.Location.Lon
	}
	now := time.Now().UTC()

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO contacts (
			name, type, subtype, city, country, address, website, email, phone,
			preferred_language, status, notes, latitude, longitude, name_key, city_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name_key, city_key) DO NOTHING
		RETURNING id`,
		lead.Name, nullIfEmpty(lead.Kind), nullIfEmpty(lead.Subtype), nullIfEmpty(lead.City),
		nullIfEmpty(lead.Country), nullIfEmpty(lead.Address), nullIfEmpty(lead.Website),
		nullIfEmpty(lead.Email), nullIfEmpty(lead.Phone), lead.PreferredLanguage, lead.Status,
		nullIfEmpty(lead.Notes), lat, lon, lead.Key.Name, lead.Key.City, now, now,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrapf(err, "sqlite: insert lead %s", lead.Key)
	}
	return id, true, nil
}

func (s *SQLiteStore) BackfillKeys(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, city, name_key, city_key FROM contacts ORDER BY id`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: backfill select")
	}
	var all []keyRow
	for rows.Next() {
		var r keyRow
		var city, nameKey, cityKey sql.NullString
		if err := rows.Scan(&r.id, &r.name, &city, &nameKey, &cityKey); err != nil {
			rows.Close() //nolint:errcheck
			return 0, eris.Wrap(err, "sqlite: backfill scan")
		}
		r.city = city.String
		r.nameKey, r.cityKey = nullPtr(nameKey), nullPtr(cityKey)
		all = append(all, r)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: backfill rows")
	}

	updates, dupes := backfillPlan(all)
	if dupes > 0 {
		zap.L().Warn("sqlite: contacts share an identity key, left unkeyed", zap.Int("count", dupes))
	}
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: backfill begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE contacts SET name_key = ?, city_key = ? WHERE id = ?`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: backfill prepare")
	}
	defer stmt.Close() //nolint:errcheck

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, *u.nameKey, *u.cityKey, u.id); err != nil {
			return 0, eris.Wrapf(err, "sqlite: backfill contact %d", u.id)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: backfill commit")
	}
	return len(updates), nil
}

func nullPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
