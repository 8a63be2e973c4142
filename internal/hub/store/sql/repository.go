package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/options"
)

var _ core.Repository = (*Repository)(nil)

// Repository implements core.Repository on PostgreSQL through gorm.
type Repository struct {
	db *gorm.DB
}

// Open connects to the database described by opts and migrates the schema
// when AutoMigrate is set.
func Open(ctx context.Context, opts *options.StoreOptions) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger:  newLogger(200 * time.Millisecond),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := New(db)
	if opts.AutoMigrate {
		if err := r.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(allModels...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	log.Info("Database schema migrated")
	return nil
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) Device() core.DeviceRepository         { return (*deviceRepo)(r) }
func (r *Repository) Firmware() core.FirmwareRepository     { return (*firmwareRepo)(r) }
func (r *Repository) Deployment() core.DeploymentRepository { return (*deploymentRepo)(r) }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrNotFound
	}
	return err
}

type deviceRepo Repository

func (r *deviceRepo) Upsert(ctx context.Context, d *model.Device) (*model.Device, error) {
	row := toDeviceModel(d)

	err := withRetry(ctx, "device.upsert", func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"address":    gorm.Expr("CASE WHEN EXCLUDED.address <> '' THEN EXCLUDED.address ELSE devices.address END"),
				"last_seen":  gorm.Expr("GREATEST(devices.last_seen, EXCLUDED.last_seen)"),
				"updated_at": gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).Create(row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("upsert device %s: %w", d.ID, err)
	}

	return r.Get(ctx, d.ID)
}

func (r *deviceRepo) Get(ctx context.Context, id string) (*model.Device, error) {
	var row deviceModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return fromDeviceModel(&row), nil
}

func (r *deviceRepo) List(ctx context.Context) ([]*model.Device, error) {
	var rows []deviceModel
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*model.Device, 0, len(rows))
	for i := range rows {
		out = append(out, fromDeviceModel(&rows[i]))
	}
	return out, nil
}

// Touch never moves last_seen backwards.
func (r *deviceRepo) Touch(ctx context.Context, updates []model.ContactUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return withRetry(ctx, "device.touch", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, u := range updates {
				fields := map[string]any{"last_seen": u.LastSeen}
				if u.Address != "" {
					fields["address"] = u.Address
				}
				err := tx.Model(&deviceModel{}).
					Where("id = ? AND last_seen < ?", u.DeviceID, u.LastSeen).
					Updates(fields).Error
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

type firmwareRepo Repository

func (r *firmwareRepo) Create(ctx context.Context, fw *model.Firmware) error {
	return r.db.WithContext(ctx).Create(toFirmwareModel(fw)).Error
}

func (r *firmwareRepo) Get(ctx context.Context, id string) (*model.Firmware, error) {
	var row firmwareModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return fromFirmwareModel(&row), nil
}

func (r *firmwareRepo) List(ctx context.Context) ([]*model.Firmware, error) {
	var rows []firmwareModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*model.Firmware, 0, len(rows))
	for i := range rows {
		out = append(out, fromFirmwareModel(&rows[i]))
	}
	return out, nil
}

type deploymentRepo Repository

func (r *deploymentRepo) Create(ctx context.Context, rec *model.DeploymentRecord) error {
	return withRetry(ctx, "deployment.create", func() error {
		return r.db.WithContext(ctx).Create(toDeploymentModel(rec)).Error
	})
}

func (r *deploymentRepo) Get(ctx context.Context, id string) (*model.DeploymentRecord, error) {
	var row deploymentModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return fromDeploymentModel(&row), nil
}

func (r *deploymentRepo) Find(ctx context.Context, f model.DeploymentFilter) ([]*model.DeploymentRecord, error) {
	var rows []deploymentModel
	if err := applyFilter(r.db.WithContext(ctx), f).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*model.DeploymentRecord, 0, len(rows))
	for i := range rows {
		out = append(out, fromDeploymentModel(&rows[i]))
	}
	return out, nil
}

// applyFilter narrows tx to f, most recent first.
func applyFilter(tx *gorm.DB, f model.DeploymentFilter) *gorm.DB {
	tx = tx.Model(&deploymentModel{})

	if f.DeviceID != "" {
		tx = tx.Where("device_id = ?", f.DeviceID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		tx = tx.Where("status IN ?", statuses)
	}
	if !f.AppliedBefore.IsZero() {
		tx = tx.Where("applied_at < ?", f.AppliedBefore)
	}

	tx = tx.Order("applied_at DESC").Order("id DESC")
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	return tx
}

func (r *deploymentRepo) Update(ctx context.Context, rec *model.DeploymentRecord) error {
	return withRetry(ctx, "deployment.update", func() error {
		return updateRecord(r.db.WithContext(ctx), rec)
	})
}

func (r *deploymentRepo) Complete(ctx context.Context, rec *model.DeploymentRecord, advanceFirmware bool) error {
	return withRetry(ctx, "deployment.complete", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := updateRecord(tx, rec); err != nil {
				return err
			}
			if !advanceFirmware {
				return nil
			}

			res := tx.Model(&deviceModel{}).
				Where("id = ?", rec.DeviceID).
				Update("current_firmware_id", rec.FirmwareID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("device %s: %w", rec.DeviceID, core.ErrNotFound)
			}
			return nil
		})
	})
}

// updateRecord writes the mutable columns of rec.
func updateRecord(tx *gorm.DB, rec *model.DeploymentRecord) error {
	res := tx.Model(&deploymentModel{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"status":        string(rec.Status),
			"completed_at":  rec.CompletedAt,
			"error_message": rec.ErrorMessage,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("deployment %s: %w", rec.ID, core.ErrNotFound)
	}
	return nil
}
