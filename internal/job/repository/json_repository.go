package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"recruitpulse-backend/internal/job/domain"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	lockShared        = unix.LOCK_SH
	lockExclusive     = unix.LOCK_EX
	lockRetryInterval = 10 * time.Millisecond
)

// jsonJobRepository implements JobRepository on a single JSON array file.
// Reads take a shared flock, writes an exclusive one, both on a sibling
// ".lock" file that is never renamed. Writes go to a temp file that is
// fsynced and renamed over the target.
type jsonJobRepository struct {
	path     string
	lockPath string
	clock    func() time.Time
	log      *zap.SugaredLogger
}

// NewJSONJobRepository creates a file-backed JobRepository. The parent
// directory is created if needed; the file itself is created on first save.
func NewJSONJobRepository(path string, opts ...Option) (JobRepository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create store dir for %s", abs)
	}
	o := buildOptions(opts)
	return &jsonJobRepository{
		path:     abs,
		lockPath: abs + ".lock",
		clock:    o.clock,
		log:      o.log.Named("store"),
	}, nil
}

func (r *jsonJobRepository) Load(ctx context.Context) ([]*domain.JobRecord, error) {
	unlock, err := r.lock(ctx, lockShared)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.read()
}

func (r *jsonJobRepository) Save(ctx context.Context, jobs []*domain.JobRecord) error {
	if err := checkCollection(jobs, true); err != nil {
		return err
	}
	unlock, err := r.lock(ctx, lockExclusive)
	if err != nil {
		return err
	}
	defer unlock()
	return r.write(jobs)
}

func (r *jsonJobRepository) Upsert(ctx context.Context, patch domain.JobPatch, policy domain.MergePolicy) (*domain.JobRecord, bool, error) {
	unlock, err := r.lock(ctx, lockExclusive)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	jobs, err := r.read()
	if err != nil {
		return nil, false, err
	}

	idx := findIndex(jobs, patch.JobID)
	var existing *domain.JobRecord
	if idx >= 0 {
		existing = jobs[idx]
	}
	merged, err := domain.Merge(existing, patch, policy, r.clock())
	if err != nil {
		return nil, false, err
	}

	if idx >= 0 {
		jobs[idx] = merged
	} else {
		jobs = append(jobs, merged)
	}
	if err := r.write(jobs); err != nil {
		return nil, false, err
	}

	r.log.Debugw("Job upserted", "job_id", patch.JobID, "inserted", idx < 0, "policy", policy.String())
	return merged.Clone(), idx < 0, nil
}

func (r *jsonJobRepository) FindByID(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	jobs, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	idx := findIndex(jobs, jobID)
	if idx < 0 {
		return nil, errors.Wrapf(ErrJobNotFound, "jobId %q", jobID)
	}
	return jobs[idx], nil
}

func (r *jsonJobRepository) Update(ctx context.Context, jobID string, fn func(*domain.JobRecord) error) (*domain.JobRecord, error) {
	unlock, err := r.lock(ctx, lockExclusive)
	if err != nil {
		return nil, err
	}
	defer unlock()

	jobs, err := r.read()
	if err != nil {
		return nil, err
	}
	idx := findIndex(jobs, jobID)
	if idx < 0 {
		return nil, errors.Wrapf(ErrJobNotFound, "jobId %q", jobID)
	}

	rec := jobs[idx].Clone()
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.JobID = jobID
	now := r.clock().UTC()
	rec.UpdatedAt = &now
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	jobs[idx] = rec
	if err := r.write(jobs); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (r *jsonJobRepository) Merge(ctx context.Context, changed []*domain.JobRecord) error {
	if len(changed) == 0 {
		return nil
	}
	if err := checkCollection(changed, true); err != nil {
		return err
	}
	unlock, err := r.lock(ctx, lockExclusive)
	if err != nil {
		return err
	}
	defer unlock()

	jobs, err := r.read()
	if err != nil {
		return err
	}
	return r.write(replaceByID(jobs, changed))
}

// read parses the backing file. Callers hold a lock.
func (r *jsonJobRepository) read() ([]*domain.JobRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*domain.JobRecord{}, nil
		}
		return nil, errors.Wrapf(err, "read %s", r.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []*domain.JobRecord{}, nil
	}

	var jobs []*domain.JobRecord
	if err := json.Unmarshal(data, &jobs); err != nil {
		r.log.Errorw("Job store is not valid JSON, refusing to continue", "path", r.path, "error", err)
		return nil, errors.Mark(errors.Wrapf(err, "parse %s", r.path), ErrStoreCorrupt)
	}
	if err := checkCollection(jobs, false); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "check %s", r.path), ErrStoreCorrupt)
	}
	if jobs == nil {
		jobs = []*domain.JobRecord{}
	}
	return jobs, nil
}

// write atomically replaces the backing file. Callers hold the exclusive lock.
func (r *jsonJobRepository) write(jobs []*domain.JobRecord) error {
	if jobs == nil {
		jobs = []*domain.JobRecord{}
	}
	data, err := json.MarshalIndent(jobs, "", "    ")
	if err != nil {
		return errors.Wrap(err, "encode jobs")
	}
	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "fsync %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpPath)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return errors.Wrapf(err, "rename %s", tmpPath)
	}
	committed = true

	// The rename is only durable once the directory entry is flushed.
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			r.log.Warnw("Failed to fsync store directory", "dir", dir, "error", err)
		}
		_ = d.Close()
	}

	r.log.Debugw("Job store saved", "path", r.path, "jobs", len(jobs))
	return nil
}

// lock takes a flock on the lock file, polling so ctx cancellation is honored.
func (r *jsonJobRepository) lock(ctx context.Context, how int) (func(), error) {
	f, err := os.OpenFile(r.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock %s", r.lockPath)
	}
	fd := int(f.Fd())

	for {
		err := unix.Flock(fd, how|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, errors.Wrapf(err, "flock %s", r.lockPath)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, errors.Wrap(ctx.Err(), "waiting for job store lock")
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
