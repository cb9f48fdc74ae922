package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"recruitpulse-backend/internal/job/domain"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jobRow stores one record as a JSON document. Position keeps the collection
// ordered the same way the file backend does.
type jobRow struct {
	JobID     string    `gorm:"primaryKey;column:job_id"`
	Position  int64     `gorm:"not null;index"`
	Data      []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (jobRow) TableName() string { return "job_records" }

// gormJobRepository implements JobRepository using GORM
type gormJobRepository struct {
	db    *gorm.DB
	clock func() time.Time
	log   *zap.SugaredLogger
}

// NewGormJobRepository creates a GORM-based JobRepository and migrates its table
func NewGormJobRepository(db *gorm.DB, opts ...Option) (JobRepository, error) {
	if err := db.AutoMigrate(&jobRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate job_records")
	}
	o := buildOptions(opts)
	return &gormJobRepository{db: db, clock: o.clock, log: o.log.Named("store")}, nil
}

func (r *gormJobRepository) Load(ctx context.Context) ([]*domain.JobRecord, error) {
	var rows []jobRow
	if err := r.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load job_records")
	}
	jobs := make([]*domain.JobRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, rec)
	}
	return jobs, nil
}

func (r *gormJobRepository) Save(ctx context.Context, jobs []*domain.JobRecord) error {
	if err := checkCollection(jobs, true); err != nil {
		return err
	}
	now := r.clock()
	rows := make([]jobRow, 0, len(jobs))
	for i, j := range jobs {
		row, err := encodeRow(j, int64(i), now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&jobRow{}).Error; err != nil {
			return errors.Wrap(err, "clear job_records")
		}
		if len(rows) == 0 {
			return nil
		}
		return errors.Wrap(tx.CreateInBatches(&rows, 100).Error, "insert job_records")
	})
}

// maxUpsertAttempts bounds retries when two writers insert the same new jobId
const maxUpsertAttempts = 3

// errInsertRace means another transaction inserted the row first
var errInsertRace = errors.New("job inserted concurrently")

func (r *gormJobRepository) Upsert(ctx context.Context, patch domain.JobPatch, policy domain.MergePolicy) (*domain.JobRecord, bool, error) {
	for attempt := 1; ; attempt++ {
		merged, inserted, err := r.upsertOnce(ctx, patch, policy)
		if errors.Is(err, errInsertRace) && attempt < maxUpsertAttempts {
			// the row exists now, so the next attempt locks it and merges
			r.log.Debugw("Concurrent insert, retrying as update", "job_id", patch.JobID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return merged, inserted, nil
	}
}

func (r *gormJobRepository) upsertOnce(ctx context.Context, patch domain.JobPatch, policy domain.MergePolicy) (*domain.JobRecord, bool, error) {
	var (
		merged   *domain.JobRecord
		inserted bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, position, err := r.lockRow(tx, patch.JobID)
		if err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
		inserted = existing == nil

		merged, err = domain.Merge(existing, patch, policy, r.clock())
		if err != nil {
			return err
		}
		if !inserted {
			row, err := encodeRow(merged, position, r.clock())
			if err != nil {
				return err
			}
			return errors.Wrap(tx.Save(&row).Error, "save job_records row")
		}

		if position, err = nextPosition(tx); err != nil {
			return err
		}
		row, err := encodeRow(merged, position, r.clock())
		if err != nil {
			return err
		}
		ok, err := insertRow(tx, row)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(errInsertRace, "jobId %q", patch.JobID)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return merged, inserted, nil
}

func (r *gormJobRepository) FindByID(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	var row jobRow
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrJobNotFound, "jobId %q", jobID)
		}
		return nil, errors.Wrap(err, "find job")
	}
	return decodeRow(row)
}

func (r *gormJobRepository) Update(ctx context.Context, jobID string, fn func(*domain.JobRecord) error) (*domain.JobRecord, error) {
	var updated *domain.JobRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, position, err := r.lockRow(tx, jobID)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		rec.JobID = jobID
		now := r.clock().UTC()
		rec.UpdatedAt = &now
		if err := rec.Validate(); err != nil {
			return err
		}
		row, err := encodeRow(rec, position, now)
		if err != nil {
			return err
		}
		if err := tx.Save(&row).Error; err != nil {
			return errors.Wrap(err, "save job_records row")
		}
		updated = rec
		return nil
	})
	return updated, err
}

func (r *gormJobRepository) Merge(ctx context.Context, changed []*domain.JobRecord) error {
	if len(changed) == 0 {
		return nil
	}
	if err := checkCollection(changed, true); err != nil {
		return err
	}
	now := r.clock()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next, err := nextPosition(tx)
		if err != nil {
			return err
		}
		for _, rec := range changed {
			row, err := encodeRow(rec, next, now)
			if err != nil {
				return err
			}
			// position is only taken for new ids; existing rows keep theirs
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "job_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return errors.Wrapf(err, "merge job %s", rec.JobID)
			}
			next++
		}
		return nil
	})
}

// lockRow selects one row FOR UPDATE inside tx
func (r *gormJobRepository) lockRow(tx *gorm.DB, jobID string) (*domain.JobRecord, int64, error) {
	var row jobRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("job_id = ?", jobID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, errors.Wrapf(ErrJobNotFound, "jobId %q", jobID)
		}
		return nil, 0, errors.Wrap(err, "lock job row")
	}
	rec, err := decodeRow(row)
	return rec, row.Position, err
}

// insertRow creates row unless its job_id already exists and reports whether
// it was written. Unlike a plain INSERT, losing a race is not an error.
func insertRow(tx *gorm.DB, row jobRow) (bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "insert job_records row")
	}
	return res.RowsAffected == 1, nil
}

func nextPosition(tx *gorm.DB) (int64, error) {
	var maxPos sql.NullInt64
	if err := tx.Model(&jobRow{}).Select("MAX(position)").Scan(&maxPos).Error; err != nil {
		return 0, errors.Wrap(err, "read max position")
	}
	if !maxPos.Valid {
		return 0, nil
	}
	return maxPos.Int64 + 1, nil
}

func encodeRow(rec *domain.JobRecord, position int64, now time.Time) (jobRow, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return jobRow{}, errors.Wrapf(err, "encode job %s", rec.JobID)
	}
	return jobRow{JobID: rec.JobID, Position: position, Data: data, UpdatedAt: now.UTC()}, nil
}

func decodeRow(row jobRow) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	if err := json.Unmarshal(row.Data, &rec); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode job %s", row.JobID), ErrStoreCorrupt)
	}
	return &rec, nil
}
