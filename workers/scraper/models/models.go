package models

import (
	"time"
)

// ScrapedDocument is a stored registry document, keyed by its identity
type ScrapedDocument struct {
	Identity      string    `gorm:"column:identity;type:char(64);primaryKey"`
	CompanyID     string    `gorm:"column:company_id;type:varchar(10);not null;index:idx_krs_df_documents_company"`
	DocumentType  string    `gorm:"column:document_type;type:text;not null"`
	DocumentName  string    `gorm:"column:document_name;type:text;not null"`
	PeriodFrom    string    `gorm:"column:period_from;type:text"`
	PeriodTo      string    `gorm:"column:period_to;type:text"`
	Status        string    `gorm:"column:document_status;type:text"`
	InternalRef   string    `gorm:"column:internal_ref;type:text"`
	SavedFileName string    `gorm:"column:saved_file_name;type:text;not null"`
	FileExtension string    `gorm:"column:file_extension;type:text"`
	Content       []byte    `gorm:"column:content;type:bytea;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamp with time zone"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamp with time zone"`
}

// TableName overrides the table name
func (ScrapedDocument) TableName() string {
	return "krs_df_documents"
}

// ScrapingStatus is the outcome of one identity within one job
type ScrapingStatus struct {
	JobID     string    `gorm:"column:job_id;type:varchar(64);primaryKey"`
	Identity  string    `gorm:"column:identity;type:char(64);primaryKey;index:idx_krs_df_scraping_status_identity"`
	Status    string    `gorm:"column:status;type:varchar(16);not null;check:chk_krs_df_scraping_status,status IN ('pending','finished','failed')"`
	Message   string    `gorm:"column:message;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp with time zone"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp with time zone"`
}

// TableName overrides the table name
func (ScrapingStatus) TableName() string {
	return "krs_df_scraping_status"
}
