package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // Postgres driver
)

// psql builds dollar-placeholder statements for the dynamic queries.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db          *sql.DB
	sources     SourceRepository
	articles    ArticleRepository
	entities    EntityRepository
	summaries   SummaryRepository
	personas    PersonaRepository
	transcripts TranscriptRepository
	viewpoints  ViewpointRepository
	agentLogs   AgentLogRepository
}

var _ Database = (*PostgresDB)(nil)

// NewPostgresDB opens a pool and verifies the store is reachable.
func NewPostgresDB(ctx context.Context, connectionString string, opts PostgresOptions) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{
		db:          db,
		sources:     &postgresSourceRepo{db: db},
		articles:    &postgresArticleRepo{db: db},
		entities:    &postgresEntityRepo{db: db},
		summaries:   &postgresSummaryRepo{db: db},
		personas:    &postgresPersonaRepo{db: db},
		transcripts: &postgresTranscriptRepo{db: db},
		viewpoints:  &postgresViewpointRepo{db: db},
		agentLogs:   &postgresAgentLogRepo{db: db},
	}, nil
}

func (p *PostgresDB) Sources() SourceRepository         { return p.sources }
func (p *PostgresDB) Articles() ArticleRepository       { return p.articles }
func (p *PostgresDB) Entities() EntityRepository        { return p.entities }
func (p *PostgresDB) Summaries() SummaryRepository      { return p.summaries }
func (p *PostgresDB) Personas() PersonaRepository       { return p.personas }
func (p *PostgresDB) Transcripts() TranscriptRepository { return p.transcripts }
func (p *PostgresDB) Viewpoints() ViewpointRepository   { return p.viewpoints }
func (p *PostgresDB) AgentLogs() AgentLogRepository     { return p.agentLogs }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// AcquireRunLock takes a session-level advisory lock on a dedicated
// connection. The lock is held until release closes that connection.
func (p *PostgresDB) AcquireRunLock(ctx context.Context, name string) (func(), bool, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve lock connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&ok); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("failed to take run lock %q: %w", name, err)
	}
	if !ok {
		conn.Close()
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name)
		conn.Close()
	}
	return release, true, nil
}

// nullString maps "" to NULL for optional foreign keys.
func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
