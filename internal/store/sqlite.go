package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/athena/internal/company"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	*sqliteQueries
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens the SQLite database at path. Every connection runs in WAL
// mode with foreign keys enforced. busyTimeoutMs <= 0 uses 5000.
func NewSQLite(ctx context.Context, path string, busyTimeoutMs int) (*SQLiteStore, error) {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	db, err := sql.Open("sqlite", sqliteDSN(path, busyTimeoutMs))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; this also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{sqliteQueries: &sqliteQueries{q: db}, db: db}, nil
}

func sqliteDSN(path string, busyTimeoutMs int) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return path + "?" + q.Encode()
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	sector              TEXT NOT NULL DEFAULT '',
	geography           TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	stage               TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	heat_score          INTEGER NOT NULL DEFAULT 1 CHECK (heat_score BETWEEN 1 AND 10),
	previous_heat_score INTEGER,
	first_detected      TEXT NOT NULL DEFAULT (datetime('now')),
	last_updated        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS signals (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id   INTEGER NOT NULL REFERENCES companies(id),
	source_type  TEXT NOT NULL DEFAULT '',
	source_name  TEXT NOT NULL,
	signal_layer TEXT NOT NULL DEFAULT 'realtime',
	source_url   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '',
	detected_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS programs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id      INTEGER NOT NULL REFERENCES companies(id),
	program_name    TEXT NOT NULL,
	program_type    TEXT NOT NULL DEFAULT '',
	program_country TEXT NOT NULL DEFAULT '',
	cohort          TEXT NOT NULL DEFAULT '',
	funding_amount  TEXT NOT NULL DEFAULT '',
	detected_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_signals_company_id ON signals(company_id);
CREATE INDEX IF NOT EXISTS idx_programs_company_id ON programs(company_id);
CREATE INDEX IF NOT EXISTS idx_companies_heat_score ON companies(heat_score);
`

// Migrate creates the schema. It is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx implements company.Store.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx company.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&sqliteQueries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return eris.Wrapf(err, "sqlite: rollback failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) InsertCompany(ctx context.Context, c *company.Company) error {
	now := company.FormatTimestamp(time.Now())
	if c.HeatScore == 0 {
		c.HeatScore = company.MinHeatScore
	}
	if c.FirstDetected == "" {
		c.FirstDetected = now
	}
	c.LastUpdated = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (name, description, sector, geography, city, stage, website, heat_score, first_detected, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Description, c.Sector, c.Geography, c.City, c.Stage, c.Website, c.HeatScore, c.FirstDetected, c.LastUpdated,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert company %q", c.Name)
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: company id")
}

func (s *SQLiteStore) InsertSignal(ctx context.Context, sig *company.Signal) error {
	if sig.DetectedAt == "" {
		sig.DetectedAt = company.FormatTimestamp(time.Now())
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (company_id, source_type, source_name, signal_layer, source_url, title, metadata, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.CompanyID, sig.SourceType, sig.SourceName, string(sig.Layer), sig.SourceURL, sig.Title, sig.Metadata, sig.DetectedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert signal for company %d", sig.CompanyID)
	}
	sig.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: signal id")
}

func (s *SQLiteStore) InsertProgram(ctx context.Context, p *company.Program) error {
	if p.DetectedAt == "" {
		p.DetectedAt = company.FormatTimestamp(time.Now())
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO programs (company_id, program_name, program_type, program_country, cohort, funding_amount, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.CompanyID, p.ProgramName, p.ProgramType, p.ProgramCountry, p.Cohort, p.FundingAmount, p.DetectedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert program for company %d", p.CompanyID)
	}
	p.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: program id")
}

func (s *SQLiteStore) ScoreDistribution(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT heat_score, COUNT(*) FROM companies GROUP BY heat_score`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: score distribution")
	}
	defer rows.Close() //nolint:errcheck

	dist := make(map[int]int)
	for rows.Next() {
		var score, n int
		if err := rows.Scan(&score, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score distribution")
		}
		dist[score] = n
	}
	return dist, eris.Wrap(rows.Err(), "sqlite: score distribution iterate")
}

func (s *SQLiteStore) RisingCompanies(ctx context.Context, minDelta, limit int) ([]Rising, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+`, heat_score - previous_heat_score AS delta
		 FROM companies
		 WHERE previous_heat_score IS NOT NULL AND heat_score - previous_heat_score >= ?
		 ORDER BY delta DESC, name ASC
		 LIMIT ?`,
		minDelta, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rising companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []Rising
	for rows.Next() {
		var r Rising
		var prev sql.NullInt64
		if err := rows.Scan(companyDest(&r.Company, &prev, &r.Delta)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rising company")
		}
		setPrevious(&r.Company, prev)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: rising companies iterate")
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteQueries implements company.Reader and company.Writer on a database
// handle or a transaction.
type sqliteQueries struct {
	q sqlQuerier
}

const companyColumns = `id, name, description, sector, geography, city, stage, website,
	heat_score, previous_heat_score, first_detected, last_updated`

const signalColumns = `id, company_id, source_type, source_name, signal_layer, source_url, title, metadata, detected_at`

const programColumns = `id, company_id, program_name, program_type, program_country, cohort, funding_amount, detected_at`

type scannable interface {
	Scan(dest ...any) error
}

// companyDest returns scan targets for companyColumns followed by extra.
func companyDest(c *company.Company, prev *sql.NullInt64, extra ...any) []any {
	dest := []any{
		&c.ID, &c.Name, &c.Description, &c.Sector, &c.Geography, &c.City, &c.Stage, &c.Website,
		&c.HeatScore, prev, &c.FirstDetected, &c.LastUpdated,
	}
	return append(dest, extra...)
}

func setPrevious(c *company.Company, prev sql.NullInt64) {
	if prev.Valid {
		v := int(prev.Int64)
		c.PreviousHeatScore = &v
	}
}

func scanCompany(row scannable) (company.Company, error) {
	var c company.Company
	var prev sql.NullInt64
	if err := row.Scan(companyDest(&c, &prev)...); err != nil {
		return c, err
	}
	setPrevious(&c, prev)
	return c, nil
}

func (s *sqliteQueries) ListCompanies(ctx context.Context) ([]company.Company, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []company.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *sqliteQueries) GetCompany(ctx context.Context, id int64) (*company.Company, error) {
	c, err := scanCompany(s.q.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}
	return &c, nil
}

func (s *sqliteQueries) GetSignals(ctx context.Context, companyID int64) ([]company.Signal, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get signals for %d", companyID)
	}
	defer rows.Close() //nolint:errcheck

	var out []company.Signal
	for rows.Next() {
		var sig company.Signal
		var layer string
		if err := rows.Scan(&sig.ID, &sig.CompanyID, &sig.SourceType, &sig.SourceName, &layer,
			&sig.SourceURL, &sig.Title, &sig.Metadata, &sig.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan signal")
		}
		sig.Layer = company.Layer(layer)
		out = append(out, sig)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get signals iterate")
}

func (s *sqliteQueries) GetPrograms(ctx context.Context, companyID int64) ([]company.Program, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+programColumns+` FROM programs WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get programs for %d", companyID)
	}
	defer rows.Close() //nolint:errcheck

	var out []company.Program
	for rows.Next() {
		var p company.Program
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.ProgramName, &p.ProgramType, &p.ProgramCountry,
			&p.Cohort, &p.FundingAmount, &p.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan program")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get programs iterate")
}

func (s *sqliteQueries) UpdateCompany(ctx context.Context, id int64, p company.Patch) error {
	cols, vals := p.Columns()
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, col+" = ?")
	}
	sets = append(sets, "last_updated = ?")
	args := append(vals, company.FormatTimestamp(time.Now()), id)

	res, err := s.q.ExecContext(ctx, `UPDATE companies SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company %d", id)
	}
	return requireRow(res, "update company", id)
}

func (s *sqliteQueries) exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM companies WHERE id = ?)`, id).Scan(&ok)
	return ok, eris.Wrapf(err, "sqlite: check company %d", id)
}

func (s *sqliteQueries) reassign(ctx context.Context, table string, fromID, toID int64) (int64, error) {
	ok, err := s.exists(ctx, toID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, eris.Wrapf(company.ErrIntegrity, "sqlite: reassign %s to missing company %d", table, toID)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE `+table+` SET company_id = ? WHERE company_id = ?`, toID, fromID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reassign %s %d -> %d", table, fromID, toID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *sqliteQueries) ReassignSignals(ctx context.Context, fromID, toID int64) (int64, error) {
	return s.reassign(ctx, "signals", fromID, toID)
}

func (s *sqliteQueries) ReassignPrograms(ctx context.Context, fromID, toID int64) (int64, error) {
	return s.reassign(ctx, "programs", fromID, toID)
}

func (s *sqliteQueries) DeleteCompany(ctx context.Context, id int64) error {
	var refs int
	err := s.q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM signals WHERE company_id = ?) + (SELECT COUNT(*) FROM programs WHERE company_id = ?)`,
		id, id,
	).Scan(&refs)
	if err != nil {
		return eris.Wrapf(err, "sqlite: count references to %d", id)
	}
	if refs > 0 {
		return eris.Wrapf(company.ErrIntegrity, "sqlite: company %d still has %d signals or programs", id, refs)
	}

	res, err := s.q.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete company %d", id)
	}
	return requireRow(res, "delete company", id)
}

func (s *sqliteQueries) SnapshotHeatScores(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, `UPDATE companies SET previous_heat_score = heat_score`)
	return eris.Wrap(err, "sqlite: snapshot heat scores")
}

func (s *sqliteQueries) SetHeatScore(ctx context.Context, id int64, score int) error {
	if score < company.MinHeatScore || score > company.MaxHeatScore {
		return eris.Errorf("sqlite: heat score %d out of range", score)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE companies SET heat_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set heat score for %d", id)
	}
	return requireRow(res, "set heat score", id)
}

// requireRow returns ErrIntegrity when res touched no row.
func requireRow(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(company.ErrIntegrity, "sqlite: %s: company %d not found", op, id)
	}
	return nil
}
