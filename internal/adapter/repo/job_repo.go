package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cutoutly/internal/domain"
	"cutoutly/internal/infra"
	"cutoutly/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Migrate creates the service tables when they do not exist.
func Migrate(ctx context.Context, sql infra.SQLExecutor) error {
	if _, err := sql.Exec(ctx, sqlinline.QCreateSchema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.OwnerID,
		string(job.Kind),
		string(job.Status),
		string(job.Stage),
		job.Progress,
		job.InputRef,
		nullableBytes(job.Options),
		job.Locale,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get fetches a job owned by ownerID.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	if !isUUID(jobID) {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, jobID, ownerID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// Update applies patch with a compare-and-swap on the job's stage.
func (r *JobRepositoryPG) Update(ctx context.Context, jobID, ownerID string, expectedStage domain.Stage, patch domain.JobPatch) (*domain.Job, error) {
	if !isUUID(jobID) {
		return nil, domain.ErrNotFound
	}
	var lastAdvanced *time.Time
	if !patch.LastAdvancedAt.IsZero() {
		lastAdvanced = &patch.LastAdvancedAt
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateJobAtStage,
		jobID,
		ownerID,
		string(expectedStage),
		stringPtr(patch.Status),
		stringPtr(patch.Stage),
		patch.Progress,
		patch.WorkingRef,
		patch.Prompt,
		nullableBytes(patch.Script),
		patch.ClearTempResult,
		nullableBytes(patch.TempResult),
		patch.ClearOutputRef,
		patch.OutputRef,
		patch.ErrorMessage,
		lastAdvanced,
	)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("update job: %w", err)
	}
	// Nothing matched: either the job is gone or someone else moved it.
	if _, getErr := r.Get(ctx, jobID, ownerID); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrStaleJob
}

// List returns the owner's jobs, newest first. TempResult is never loaded.
func (r *JobRepositoryPG) List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsByOwner, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes the job and returns its last state so callers can clean up
// stored images.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	if !isUUID(jobID) {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QDeleteJob, jobID, ownerID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("delete job: %w", err)
	}
	return job, nil
}

// FailStalled marks idle processing jobs as failed.
func (r *JobRepositoryPG) FailStalled(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QFailStalledJobs, cutoff, message)
	if err != nil {
		return nil, fmt.Errorf("fail stalled jobs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stalled job: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fail stalled jobs: %w", err)
	}
	return ids, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                   domain.Job
		kind, status, stage   string
		options, script, temp []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&kind,
		&status,
		&stage,
		&job.Progress,
		&job.InputRef,
		&job.WorkingRef,
		&options,
		&job.Prompt,
		&script,
		&temp,
		&job.OutputRef,
		&job.ErrorMessage,
		&job.Locale,
		&job.LastAdvancedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.Stage = domain.Stage(stage)
	job.Options = options
	job.Script = script
	job.TempResult = temp
	return &job, nil
}

// isUUID reports whether id can match a uuid column. Anything else would make
// postgres reject the cast instead of returning no rows.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
