package contact

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/db"
	"github.com/artcrm/artcrm/internal/identity"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool      db.Pool
	closeFn   func()
	postgis   bool
	opTimeout time.Duration
}

// PostgresOptions tunes the pool and schema.
type PostgresOptions struct {
	MaxConns int32
	// PostGIS adds a geometry(Point, 4326) location column.
	PostGIS   bool
	OpTimeout time.Duration
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, opts PostgresOptions) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	if opts.MaxConns > 0 {
		maxConns = opts.MaxConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, postgis: opts.PostGIS, opTimeout: opts.OpTimeout}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id                  BIGSERIAL PRIMARY KEY,
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
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at          TIMESTAMPTZ
);

ALTER TABLE contacts ADD COLUMN IF NOT EXISTS name_key TEXT;
ALTER TABLE contacts ADD COLUMN IF NOT EXISTS city_key TEXT;

CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_identity_key ON contacts(name_key, city_key);
CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts(status);
CREATE INDEX IF NOT EXISTS idx_contacts_city ON contacts(city);
`

const postgisMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
ALTER TABLE contacts ADD COLUMN IF NOT EXISTS location geometry(Point, 4326);
CREATE INDEX IF NOT EXISTS idx_contacts_location ON contacts USING GIST (location);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	if s.postgis {
		if _, err := s.pool.Exec(ctx, postgisMigration); err != nil {
			return eris.Wrap(err, "postgres: migrate postgis")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Snapshot(ctx context.Context) (*Index, error) {
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT name, city, name_key, city_key FROM contacts`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot")
	}
	defer rows.Close()

	var keys []identity.Key
	for rows.Next() {
		var name string
		var city, nameKey, cityKey *string
		if err := rows.Scan(&name, &city, &nameKey, &cityKey); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot row")
		}
		keys = append(keys, storedKey(name, deref(city), nameKey, cityKey))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot rows")
	}
	return NewIndex(keys...), nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key identity.Key) (*Contact, error) {
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	var c Contact
	var city *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, city, status, name_key, city_key, deleted_at FROM contacts WHERE name_key = $1 AND city_key = $2 LIMIT 1`,
		key.Name, key.City,
	).Scan(&c.ID, &c.Name, &city, &c.Status, &c.NameKey, &c.CityKey, &c.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.findUnkeyed(ctx, key)
		}
		return nil, eris.Wrapf(err, "postgres: find contact %s", key)
	}
	c.City = deref(city)
	return &c, nil
}

// findUnkeyed folds the name and city of rows written without identity keys,
// so contacts added by other CRM paths after migrate still hold their key.
func (s *PostgresStore) findUnkeyed(ctx context.Context, key identity.Key) (*Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, city, status, deleted_at FROM contacts WHERE name_key IS NULL ORDER BY id`)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find unkeyed contact %s", key)
	}
	defer rows.Close()

	for rows.Next() {
		var c Contact
		var city *string
		if err := rows.Scan(&c.ID, &c.Name, &city, &c.Status, &c.DeletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unkeyed contact")
		}
		c.City = deref(city)
		if identity.NewKey(c.Name, c.City) == key {
			c.NameKey, c.CityKey = key.Name, key.City
			return &c, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: unkeyed contact rows")
	}
	return nil, ErrNotFound
}

const insertLeadSQL = `INSERT INTO contacts (
	name, type, subtype, city, country, address, website, email, phone,
	preferred_language, status, notes, name_key, city_key, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
ON CONFLICT (name_key, city_key) DO NOTHING
RETURNING id`

const insertLeadPostGISSQL = `INSERT INTO contacts (
	name, type, subtype, city, country, address, website, email, phone,
	preferred_language, status, notes, name_key, city_key, location, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, ST_GeomFromEWKB($15), now(), now())
ON CONFLICT (name_key, city_key) DO NOTHING
RETURNING id`

func (s *PostgresStore) InsertLeadIfAbsent(ctx context.Context, lead Lead) (int64, bool, error) {
	if !lead.Key.Valid() {
		return 0, false, eris.Errorf("postgres: lead %q has no identity key", lead.Name)
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	args := []any{
		lead.Name, nullIfEmpty(lead.Kind), nullIfEmpty(lead.Subtype), nullIfEmpty(lead.City),
		nullIfEmpty(lead.Country), nullIfEmpty(lead.Address), nullIfEmpty(lead.Website),
		nullIfEmpty(lead.Email), nullIfEmpty(lead.Phone), lead.PreferredLanguage, lead.Status,
		nullIfEmpty(lead.Notes), lead.Key.Name, lead.Key.City,
	}
	query := insertLeadSQL
	if s.postgis {
		loc, err := encodePoint(lead.Location)
		if err != nil {
			return 0, false, err
		}
		args = append(args, loc)
		query = insertLeadPostGISSQL
	}

	var id int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrapf(err, "postgres: insert lead %s", lead.Key)
	}
	return id, true, nil
}

func (s *PostgresStore) BackfillKeys(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, city, name_key, city_key FROM contacts ORDER BY id`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: backfill select")
	}
	var all []keyRow
	for rows.Next() {
		var r keyRow
		var city *string
		if err := rows.Scan(&r.id, &r.name, &city, &r.nameKey, &r.cityKey); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: backfill scan")
		}
		r.city = deref(city)
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: backfill rows")
	}

	updates, dupes := backfillPlan(all)
	if dupes > 0 {
		zap.L().Warn("postgres: contacts share an identity key, left unkeyed", zap.Int("count", dupes))
	}

	data := make([][]any, len(updates))
	for i, u := range updates {
		data[i] = []any{u.id, *u.nameKey, *u.cityKey}
	}
	n, err := db.BulkUpdate(ctx, s.pool, db.UpdateConfig{
		Table:   "contacts",
		Columns: []string{"id", "name_key", "city_key"},
		KeyCols: []string{"id"},
	}, data)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: backfill keys")
	}
	return int(n), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
