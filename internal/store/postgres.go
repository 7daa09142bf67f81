package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	*pgQueries
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(10), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: &pgQueries{q: pool}, pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                  BIGSERIAL PRIMARY KEY,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	sector              TEXT NOT NULL DEFAULT '',
	geography           TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	stage               TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	heat_score          INTEGER NOT NULL DEFAULT 1 CHECK (heat_score BETWEEN 1 AND 10),
	previous_heat_score INTEGER,
	first_detected      TIMESTAMPTZ DEFAULT now(),
	last_updated        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS signals (
	id           BIGSERIAL PRIMARY KEY,
	company_id   BIGINT NOT NULL REFERENCES companies(id),
	source_type  TEXT NOT NULL DEFAULT '',
	source_name  TEXT NOT NULL,
	signal_layer TEXT NOT NULL DEFAULT 'realtime',
	source_url   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '',
	detected_at  TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS programs (
	id              BIGSERIAL PRIMARY KEY,
	company_id      BIGINT NOT NULL REFERENCES companies(id),
	program_name    TEXT NOT NULL,
	program_type    TEXT NOT NULL DEFAULT '',
	program_country TEXT NOT NULL DEFAULT '',
	cohort          TEXT NOT NULL DEFAULT '',
	funding_amount  TEXT NOT NULL DEFAULT '',
	detected_at     TIMESTAMPTZ DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_signals_company_id ON signals(company_id);
CREATE INDEX IF NOT EXISTS idx_programs_company_id ON programs(company_id);
CREATE INDEX IF NOT EXISTS idx_companies_heat_score ON companies(heat_score);

ALTER TABLE companies ALTER COLUMN first_detected DROP NOT NULL;
ALTER TABLE signals ALTER COLUMN detected_at DROP NOT NULL;
ALTER TABLE programs ALTER COLUMN detected_at DROP NOT NULL;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InTx implements company.Store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx company.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(&pgQueries{q: tx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return eris.Wrapf(err, "postgres: rollback failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// passLockKey identifies the reconciliation pass advisory lock.
const passLockKey int64 = 0x617468656e61

// TryLock takes the cluster-wide reconciliation lock without waiting. The
// lock is a transaction-scoped advisory lock held on a dedicated
// transaction until unlock is called.
func (s *PostgresStore) TryLock(ctx context.Context) (unlock func(), ok bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: begin lock tx")
	}
	release := func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}

	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, passLockKey).Scan(&ok); err != nil {
		release()
		return nil, false, eris.Wrap(err, "postgres: try advisory lock")
	}
	if !ok {
		release()
		return nil, false, nil
	}
	return release, true, nil
}

func (s *PostgresStore) InsertCompany(ctx context.Context, c *company.Company) error {
	now := time.Now().UTC()
	if c.HeatScore == 0 {
		c.HeatScore = company.MinHeatScore
	}
	first := pgTime(c.FirstDetected, now)

	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, description, sector, geography, city, stage, website, heat_score, first_detected, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		c.Name, c.Description, c.Sector, c.Geography, c.City, c.Stage, c.Website, c.HeatScore, first, now,
	).Scan(&c.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert company %q", c.Name)
	}
	c.FirstDetected = pgTimeText(first)
	c.LastUpdated = company.FormatTimestamp(now)
	return nil
}

func (s *PostgresStore) InsertSignal(ctx context.Context, sig *company.Signal) error {
	at := pgTime(sig.DetectedAt, time.Now().UTC())
	err := s.pool.QueryRow(ctx,
		`INSERT INTO signals (company_id, source_type, source_name, signal_layer, source_url, title, metadata, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		sig.CompanyID, sig.SourceType, sig.SourceName, string(sig.Layer), sig.SourceURL, sig.Title, sig.Metadata, at,
	).Scan(&sig.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert signal for company %d", sig.CompanyID)
	}
	sig.DetectedAt = pgTimeText(at)
	return nil
}

func (s *PostgresStore) InsertProgram(ctx context.Context, p *company.Program) error {
	at := pgTime(p.DetectedAt, time.Now().UTC())
	err := s.pool.QueryRow(ctx,
		`INSERT INTO programs (company_id, program_name, program_type, program_country, cohort, funding_amount, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.CompanyID, p.ProgramName, p.ProgramType, p.ProgramCountry, p.Cohort, p.FundingAmount, at,
	).Scan(&p.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert program for company %d", p.CompanyID)
	}
	p.DetectedAt = pgTimeText(at)
	return nil
}

var signalCopyColumns = []string{
	"company_id", "source_type", "source_name", "signal_layer", "source_url", "title", "metadata", "detected_at",
}

var programCopyColumns = []string{
	"company_id", "program_name", "program_type", "program_country", "cohort", "funding_amount", "detected_at",
}

// CopySignals bulk-loads signals with COPY. IDs are not filled in.
func (s *PostgresStore) CopySignals(ctx context.Context, signals []company.Signal) (int64, error) {
	now := time.Now().UTC()
	n, err := db.CopyRecords(ctx, s.pool, "signals", signalCopyColumns, signals, func(sig company.Signal) []any {
		return []any{
			sig.CompanyID, sig.SourceType, sig.SourceName, string(sig.Layer), sig.SourceURL,
			sig.Title, sig.Metadata, pgTime(sig.DetectedAt, now),
		}
	})
	return n, eris.Wrap(err, "postgres: copy signals")
}

// CopyPrograms bulk-loads programs with COPY. IDs are not filled in.
func (s *PostgresStore) CopyPrograms(ctx context.Context, programs []company.Program) (int64, error) {
	now := time.Now().UTC()
	n, err := db.CopyRecords(ctx, s.pool, "programs", programCopyColumns, programs, func(p company.Program) []any {
		return []any{
			p.CompanyID, p.ProgramName, p.ProgramType, p.ProgramCountry, p.Cohort,
			p.FundingAmount, pgTime(p.DetectedAt, now),
		}
	})
	return n, eris.Wrap(err, "postgres: copy programs")
}

func (s *PostgresStore) ScoreDistribution(ctx context.Context) (map[int]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT heat_score, COUNT(*) FROM companies GROUP BY heat_score`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: score distribution")
	}
	defer rows.Close()

	dist := make(map[int]int)
	for rows.Next() {
		var score int
		var n int64
		if err := rows.Scan(&score, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score distribution")
		}
		dist[score] = int(n)
	}
	return dist, eris.Wrap(rows.Err(), "postgres: score distribution iterate")
}

func (s *PostgresStore) RisingCompanies(ctx context.Context, minDelta, limit int) ([]Rising, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCompanyColumns+`, heat_score - previous_heat_score AS delta
		 FROM companies
		 WHERE previous_heat_score IS NOT NULL AND heat_score - previous_heat_score >= $1
		 ORDER BY delta DESC, name ASC
		 LIMIT $2`,
		minDelta, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: rising companies")
	}
	defer rows.Close()

	var out []Rising
	for rows.Next() {
		var r Rising
		if err := rows.Scan(pgCompanyDest(&r.Company, &r.Delta)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rising company")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: rising companies iterate")
}

// pgTime converts timestamp text to a column value. Empty text takes def.
// Text in no accepted layout is stored as NULL, which reads back as "" and
// scores as an absent timestamp.
func pgTime(s string, def time.Time) any {
	if strings.TrimSpace(s) == "" {
		return def
	}
	if t, ok := company.ParseTimestamp(s); ok {
		return t
	}
	return nil
}

// pgTimeText renders a pgTime value the way pgText reads it back.
func pgTimeText(v any) string {
	if t, ok := v.(time.Time); ok {
		return company.FormatTimestamp(t)
	}
	return ""
}

// pgQueries implements company.Reader and company.Writer on a pool or a
// transaction.
type pgQueries struct {
	q db.Querier
}

func pgText(col string) string {
	return fmt.Sprintf(`COALESCE(to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS'), '')`, col)
}

var (
	pgCompanyColumns = `id, name, description, sector, geography, city, stage, website, heat_score, previous_heat_score, ` +
		pgText("first_detected") + `, ` + pgText("last_updated")
	pgSignalColumns = `id, company_id, source_type, source_name, signal_layer, source_url, title, metadata, ` +
		pgText("detected_at")
	pgProgramColumns = `id, company_id, program_name, program_type, program_country, cohort, funding_amount, ` +
		pgText("detected_at")
)

func pgCompanyDest(c *company.Company, extra ...any) []any {
	dest := []any{
		&c.ID, &c.Name, &c.Description, &c.Sector, &c.Geography, &c.City, &c.Stage, &c.Website,
		&c.HeatScore, &c.PreviousHeatScore, &c.FirstDetected, &c.LastUpdated,
	}
	return append(dest, extra...)
}

func (s *pgQueries) ListCompanies(ctx context.Context) ([]company.Company, error) {
	rows, err := s.q.Query(ctx, `SELECT `+pgCompanyColumns+` FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []company.Company
	for rows.Next() {
		var c company.Company
		if err := rows.Scan(pgCompanyDest(&c)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *pgQueries) GetCompany(ctx context.Context, id int64) (*company.Company, error) {
	var c company.Company
	err := s.q.QueryRow(ctx, `SELECT `+pgCompanyColumns+` FROM companies WHERE id = $1`, id).Scan(pgCompanyDest(&c)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}
	return &c, nil
}

func (s *pgQueries) GetSignals(ctx context.Context, companyID int64) ([]company.Signal, error) {
	rows, err := s.q.Query(ctx, `SELECT `+pgSignalColumns+` FROM signals WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get signals for %d", companyID)
	}
	defer rows.Close()

	var out []company.Signal
	for rows.Next() {
		var sig company.Signal
		var layer string
		if err := rows.Scan(&sig.ID, &sig.CompanyID, &sig.SourceType, &sig.SourceName, &layer,
			&sig.SourceURL, &sig.Title, &sig.Metadata, &sig.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan signal")
		}
		sig.Layer = company.Layer(layer)
		out = append(out, sig)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get signals iterate")
}

func (s *pgQueries) GetPrograms(ctx context.Context, companyID int64) ([]company.Program, error) {
	rows, err := s.q.Query(ctx, `SELECT `+pgProgramColumns+` FROM programs WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get programs for %d", companyID)
	}
	defer rows.Close()

	var out []company.Program
	for rows.Next() {
		var p company.Program
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.ProgramName, &p.ProgramType, &p.ProgramCountry,
			&p.Cohort, &p.FundingAmount, &p.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan program")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get programs iterate")
}

func (s *pgQueries) UpdateCompany(ctx context.Context, id int64, p company.Patch) error {
	cols, vals := p.Columns()
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	sets = append(sets, "last_updated = now()")
	args := append(vals, id)

	tag, err := s.q.Exec(ctx,
		fmt.Sprintf(`UPDATE companies SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %d", id)
	}
	return requireTag(tag, "update company", id)
}

func (s *pgQueries) reassign(ctx context.Context, table string, fromID, toID int64) (int64, error) {
	var ok bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM companies WHERE id = $1)`, toID).Scan(&ok); err != nil {
		return 0, eris.Wrapf(err, "postgres: check company %d", toID)
	}
	if !ok {
		return 0, eris.Wrapf(company.ErrIntegrity, "postgres: reassign %s to missing company %d", table, toID)
	}
	tag, err := s.q.Exec(ctx, `UPDATE `+table+` SET company_id = $1 WHERE company_id = $2`, toID, fromID)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reassign %s %d -> %d", table, fromID, toID)
	}
	return tag.RowsAffected(), nil
}

func (s *pgQueries) ReassignSignals(ctx context.Context, fromID, toID int64) (int64, error) {
	return s.reassign(ctx, "signals", fromID, toID)
}

func (s *pgQueries) ReassignPrograms(ctx context.Context, fromID, toID int64) (int64, error) {
	return s.reassign(ctx, "programs", fromID, toID)
}

func (s *pgQueries) DeleteCompany(ctx context.Context, id int64) error {
	var refs int64
	err := s.q.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM signals WHERE company_id = $1) + (SELECT COUNT(*) FROM programs WHERE company_id = $1)`,
		id,
	).Scan(&refs)
	if err != nil {
		return eris.Wrapf(err, "postgres: count references to %d", id)
	}
	if refs > 0 {
		return eris.Wrapf(company.ErrIntegrity, "postgres: company %d still has %d signals or programs", id, refs)
	}

	tag, err := s.q.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete company %d", id)
	}
	return requireTag(tag, "delete company", id)
}

func (s *pgQueries) SnapshotHeatScores(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `UPDATE companies SET previous_heat_score = heat_score`)
	return eris.Wrap(err, "postgres: snapshot heat scores")
}

func (s *pgQueries) SetHeatScore(ctx context.Context, id int64, score int) error {
	if score < company.MinHeatScore || score > company.MaxHeatScore {
		return eris.Errorf("postgres: heat score %d out of range", score)
	}
	tag, err := s.q.Exec(ctx, `UPDATE companies SET heat_score = $1 WHERE id = $2`, score, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set heat score for %d", id)
	}
	return requireTag(tag, "set heat score", id)
}

func requireTag(tag pgconn.CommandTag, op string, id int64) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(company.ErrIntegrity, "postgres: %s: company %d not found", op, id)
	}
	return nil
}
