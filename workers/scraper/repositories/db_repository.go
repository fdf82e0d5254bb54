package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/models"
)

// DocumentTx is the view of the store available while an identity lock is held.
type DocumentTx interface {
	DocumentExists(id domain.Identity) (bool, error)
	InsertDocument(draft *domain.DocumentDraft) (bool, error)
	SetStatus(jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error)
}

type DBRepository interface {
	RegisterJob(ctx context.Context, jobID string, ids []domain.Identity) error
	JobStatuses(ctx context.Context, jobID string) ([]domain.StatusRecord, error)
	StoredIdentities(ctx context.Context, ids []domain.Identity) (map[domain.Identity]bool, error)
	WithIdentityLock(ctx context.Context, id domain.Identity, fn func(tx DocumentTx) error) error
	SetStatus(ctx context.Context, jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error)
	FailPending(ctx context.Context, jobID, message string) (int64, error)
	Documents(ctx context.Context, ids []domain.Identity) ([]domain.StoredDocument, error)
	StoredDocuments(ctx context.Context, companyID string) ([]domain.StoredDocument, error)
	Migrate(ctx context.Context) error
}

type PostgresDBRepository struct {
	DB        *gorm.DB
	BatchSize int
}

func NewDBRepository(db *gorm.DB, batchSize int) *PostgresDBRepository {
	if batchSize <= 0 {
		batchSize = 100 // Default
	}
	return &PostgresDBRepository{
		DB:        db,
		BatchSize: batchSize,
	}
}

// RegisterJob creates a pending status row for every identity of the job. Rows
// that already exist, from an earlier delivery of the same job, are kept as they are.
func (repo *PostgresDBRepository) RegisterJob(ctx context.Context, jobID string, ids []domain.Identity) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]models.ScrapingStatus, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.ScrapingStatus{
			JobID:    jobID,
			Identity: id.String(),
			Status:   string(domain.StatusPending),
		})
	}
	err := repo.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, repo.BatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", jobID, err)
	}
	return nil
}

func (repo *PostgresDBRepository) JobStatuses(ctx context.Context, jobID string) ([]domain.StatusRecord, error) {
	var rows []models.ScrapingStatus
	err := repo.DB.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at, identity").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load statuses of job %s: %w", jobID, err)
	}
	out := make([]domain.StatusRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.StatusRecord{
			JobID:     r.JobID,
			Identity:  domain.Identity(r.Identity),
			Status:    domain.ScrapingStatus(r.Status),
			Message:   r.Message,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

// StoredIdentities reports which of ids already have a stored document.
func (repo *PostgresDBRepository) StoredIdentities(ctx context.Context, ids []domain.Identity) (map[domain.Identity]bool, error) {
	stored := make(map[domain.Identity]bool, len(ids))
	if len(ids) == 0 {
		return stored, nil
	}
	var found []string
	err := repo.DB.WithContext(ctx).
		Model(&models.ScrapedDocument{}).
		Where("identity IN ?", identityStrings(ids)).
		Pluck("identity", &found).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up stored documents: %w", err)
	}
	for _, id := range found {
		stored[domain.Identity(id)] = true
	}
	return stored, nil
}

// WithIdentityLock runs fn in a transaction holding the advisory lock derived
// from id. The lock is released when the transaction ends.
func (repo *PostgresDBRepository) WithIdentityLock(ctx context.Context, id domain.Identity, fn func(tx DocumentTx) error) error {
	return repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", id.LockKey()).Error; err != nil {
			return fmt.Errorf("failed to lock identity %s: %w", id.Short(), err)
		}
		return fn(&gormDocumentTx{db: tx})
	})
}

func (repo *PostgresDBRepository) SetStatus(ctx context.Context, jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error) {
	return setStatus(repo.DB.WithContext(ctx), jobID, id, status, message)
}

// FailPending turns every still-pending row of the job into a failure.
func (repo *PostgresDBRepository) FailPending(ctx context.Context, jobID, message string) (int64, error) {
	res := repo.DB.WithContext(ctx).
		Model(&models.ScrapingStatus{}).
		Where("job_id = ? AND status = ?", jobID, string(domain.StatusPending)).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusFailed),
			"message":    message,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to fail pending rows of job %s: %w", jobID, res.Error)
	}
	return res.RowsAffected, nil
}

// Documents loads stored documents, content included.
func (repo *PostgresDBRepository) Documents(ctx context.Context, ids []domain.Identity) ([]domain.StoredDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.ScrapedDocument
	err := repo.DB.WithContext(ctx).
		Where("identity IN ?", identityStrings(ids)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	out := make([]domain.StoredDocument, 0, len(rows))
	for _, r := range rows {
		d := toStoredDocument(r)
		d.Content = r.Content
		out = append(out, d)
	}
	return out, nil
}

// StoredDocuments lists the metadata of every stored document of a company.
func (repo *PostgresDBRepository) StoredDocuments(ctx context.Context, companyID string) ([]domain.StoredDocument, error) {
	var rows []models.ScrapedDocument
	err := repo.DB.WithContext(ctx).
		Omit("content").
		Where("company_id = ?", companyID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents of company %s: %w", companyID, err)
	}
	out := make([]domain.StoredDocument, 0, len(rows))
	for _, r := range rows {
		out = append(out, toStoredDocument(r))
	}
	return out, nil
}

func (repo *PostgresDBRepository) Migrate(ctx context.Context) error {
	return repo.DB.WithContext(ctx).AutoMigrate(&models.ScrapedDocument{}, &models.ScrapingStatus{})
}

type gormDocumentTx struct {
	db *gorm.DB
}

func (t *gormDocumentTx) DocumentExists(id domain.Identity) (bool, error) {
	var n int64
	err := t.db.Model(&models.ScrapedDocument{}).Where("identity = ?", id.String()).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", id.Short(), err)
	}
	return n > 0, nil
}

// InsertDocument stores the draft unless a row with its identity exists. It
// reports whether this call created the row.
func (t *gormDocumentTx) InsertDocument(draft *domain.DocumentDraft) (bool, error) {
	doc := models.ScrapedDocument{
		Identity:      draft.Identity.String(),
		CompanyID:     draft.CompanyID,
		DocumentType:  draft.Type,
		DocumentName:  draft.Name,
		PeriodFrom:    draft.PeriodFrom,
		PeriodTo:      draft.PeriodTo,
		Status:        draft.Status,
		InternalRef:   draft.InternalRef,
		SavedFileName: draft.SavedFileName,
		FileExtension: draft.FileExtension,
		Content:       draft.Content,
	}
	res := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoNothing: true,
	}).Create(&doc)
	if res.Error != nil {
		return false, classifyWriteError(res.Error, draft.Identity)
	}
	return res.RowsAffected > 0, nil
}

func (t *gormDocumentTx) SetStatus(jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error) {
	return setStatus(t.db, jobID, id, status, message)
}

// setStatus moves a pending row to status. Rows already terminal are left alone
// and false is returned.
func setStatus(db *gorm.DB, jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error) {
	res := db.Model(&models.ScrapingStatus{}).
		Where("job_id = ? AND identity = ? AND status = ?", jobID, id.String(), string(domain.StatusPending)).
		Updates(map[string]interface{}{
			"status":     string(status),
			"message":    message,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set status of %s in job %s: %w", id.Short(), jobID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// classifyWriteError maps constraint failures onto the storage error kinds.
// Unique violations are conflicts; every other integrity constraint is a violation.
func classifyWriteError(err error, id domain.Identity) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.Wrap(domain.KindStorageConflict, err, "document "+id.Short()+" already stored")
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return domain.Wrap(domain.KindStorageIntegrityViolation, err, "document "+id.Short()+" rejected by store")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		if pgErr.Code == "23505" {
			return domain.Wrap(domain.KindStorageConflict, err, "document "+id.Short()+" already stored")
		}
		return domain.Wrap(domain.KindStorageIntegrityViolation, err, "document "+id.Short()+" rejected by store")
	}
	return fmt.Errorf("failed to insert document %s: %w", id.Short(), err)
}

func toStoredDocument(r models.ScrapedDocument) domain.StoredDocument {
	return domain.StoredDocument{
		Identity:      domain.Identity(r.Identity),
		CompanyID:     r.CompanyID,
		Type:          r.DocumentType,
		Name:          r.DocumentName,
		PeriodFrom:    r.PeriodFrom,
		PeriodTo:      r.PeriodTo,
		SavedFileName: r.SavedFileName,
		FileExtension: r.FileExtension,
		CreatedAt:     r.CreatedAt,
	}
}

func identityStrings(ids []domain.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
