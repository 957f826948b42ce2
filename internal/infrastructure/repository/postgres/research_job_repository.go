package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

// ResearchJobRepository reads research_jobs written by the research pipeline.
type ResearchJobRepository struct {
	db *sql.DB
}

func NewResearchJobRepository(db *sql.DB) *ResearchJobRepository {
	return &ResearchJobRepository{db: db}
}

func (r *ResearchJobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS research_jobs (
	job_id UUID PRIMARY KEY,
	trace_id VARCHAR(64),
	query TEXT NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	result JSONB,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_research_jobs_status ON research_jobs(status);
CREATE INDEX IF NOT EXISTS idx_research_jobs_created_at ON research_jobs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// FindCompleted returns completed jobs whose query contains any keyword, newest first.
func (r *ResearchJobRepository) FindCompleted(ctx context.Context, keywords []string, limit int) ([]domain.ResearchJob, error) {
	if len(keywords) == 0 || limit <= 0 {
		return []domain.ResearchJob{}, nil
	}

	args := make([]any, 0, len(keywords)+2)
	args = append(args, domain.JobStatusCompleted)
	clauses := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		args = append(args, "%"+escapeLike(keyword)+"%")
		clauses = append(clauses, fmt.Sprintf(`query ILIKE $%d ESCAPE '\'`, len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
SELECT job_id::text, query, status, result, created_at
FROM research_jobs
WHERE status = $1 AND (%s)
ORDER BY created_at DESC
LIMIT $%d
`, strings.Join(clauses, " OR "), len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query research jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ResearchJob, 0, limit)
	for rows.Next() {
		var job domain.ResearchJob
		var result []byte
		if err := rows.Scan(&job.ID, &job.Query, &job.Status, &result, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan research job: %w", err)
		}
		if len(result) > 0 {
			job.Result = append([]byte(nil), result...)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate research jobs: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
