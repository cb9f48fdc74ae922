package repository

import (
	"context"
	"time"

	"recruitpulse-backend/internal/job/domain"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	// ErrStoreCorrupt is returned when a non-empty backing store cannot be
	// parsed. Callers must stop instead of writing an empty collection.
	ErrStoreCorrupt = errors.New("job store is corrupt")
	// ErrJobNotFound is returned by FindByID and Update for unknown ids
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateJobID is returned when a collection holds the same jobId twice
	ErrDuplicateJobID = errors.New("duplicate jobId")
)

// JobRepository defines the interface for job record persistence
type JobRepository interface {
	// Load returns every record in stored order
	Load(ctx context.Context) ([]*domain.JobRecord, error)

	// Save replaces the whole collection
	Save(ctx context.Context, jobs []*domain.JobRecord) error

	// Upsert merges a partial record into the stored one keyed by jobId.
	// Returns the stored record and whether it was inserted.
	Upsert(ctx context.Context, patch domain.JobPatch, policy domain.MergePolicy) (*domain.JobRecord, bool, error)

	// FindByID returns a copy of one record
	FindByID(ctx context.Context, jobID string) (*domain.JobRecord, error)

	// Update runs fn on the stored record under the write lock and persists the
	// result. fn must not call external services.
	Update(ctx context.Context, jobID string, fn func(*domain.JobRecord) error) (*domain.JobRecord, error)

	// Merge writes back records changed by the engine in a single save,
	// replacing stored records with the same jobId.
	Merge(ctx context.Context, changed []*domain.JobRecord) error
}

// checkCollection rejects nil entries and duplicate ids. With validate set it
// also checks every record's invariants.
func checkCollection(jobs []*domain.JobRecord, validate bool) error {
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if j == nil {
			return errors.New("nil job record")
		}
		if _, dup := seen[j.JobID]; dup {
			return errors.Wrapf(ErrDuplicateJobID, "jobId %q", j.JobID)
		}
		seen[j.JobID] = struct{}{}
		if !validate {
			continue
		}
		if err := j.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// replaceByID returns jobs with every changed record swapped in by id.
// Unknown ids are appended.
func replaceByID(jobs, changed []*domain.JobRecord) []*domain.JobRecord {
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		index[j.JobID] = i
	}
	for _, c := range changed {
		if i, ok := index[c.JobID]; ok {
			jobs[i] = c
			continue
		}
		index[c.JobID] = len(jobs)
		jobs = append(jobs, c)
	}
	return jobs
}

// Option configures a repository
type Option func(*options)

type options struct {
	clock func() time.Time
	log   *zap.SugaredLogger
}

// WithClock overrides the time source used for processedAt/updatedAt
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{
		clock: func() time.Time { return time.Now().UTC() },
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func findIndex(jobs []*domain.JobRecord, jobID string) int {
	for i, j := range jobs {
		if j.JobID == jobID {
			return i
		}
	}
	return -1
}
