package domain

import "time"

// ScrapingStatus is the lifecycle state of one (job, identity) pair.
type ScrapingStatus string

// Terminal reports whether the status is final for its job.
func (s ScrapingStatus) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// DocumentRow is one row scraped from a listing page. InternalRef is only valid
// inside the session that produced it.
type DocumentRow struct {
	InternalRef string   `json:"-"`
	Identity    Identity `json:"identity"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	PeriodFrom  string   `json:"period_from"`
	PeriodTo    string   `json:"period_to"`
	Status      string   `json:"status"`
}

// DocumentDraft is a fetched document that has not been committed yet.
type DocumentDraft struct {
	Identity      Identity
	CompanyID     string
	InternalRef   string
	Type          string
	Name          string
	PeriodFrom    string
	PeriodTo      string
	Status        string
	SavedFileName string
	FileExtension string
	Content       []byte
}

// StoredDocument is a durably stored document. Content is only loaded when
// explicitly requested.
type StoredDocument struct {
	Identity      Identity  `json:"identity"`
	CompanyID     string    `json:"company_id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	PeriodFrom    string    `json:"period_from"`
	PeriodTo      string    `json:"period_to"`
	SavedFileName string    `json:"saved_file_name"`
	FileExtension string    `json:"file_extension"`
	CreatedAt     time.Time `json:"created_at"`
	Content       []byte    `json:"-"`
}

// StatusRecord is the durable outcome for one (job, identity) pair.
type StatusRecord struct {
	JobID     string         `json:"job_id"`
	Identity  Identity       `json:"identity"`
	Status    ScrapingStatus `json:"status"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Job is one unit of dispatched work.
type Job struct {
	ID         string
	CompanyID  string
	Identities []Identity
}

// JobMessage is the broker payload for a Job.
type JobMessage struct {
	Type       string   `json:"type"`
	JobID      string   `json:"job_id"`
	CompanyID  string   `json:"company_id"`
	Identities []string `json:"identities"`
}

// Job validates the message and converts it into a Job.
func (m JobMessage) Job() (Job, error) {
	if m.JobID == "" {
		return Job{}, Errorf(KindInvalidParameter, "job id is required")
	}
	if err := ValidateCompanyID(m.CompanyID); err != nil {
		return Job{}, err
	}
	ids, err := ParseIdentities(m.Identities)
	if err != nil {
		return Job{}, err
	}
	return Job{ID: m.JobID, CompanyID: m.CompanyID, Identities: ids}, nil
}

// JobSummary counts the outcomes of one coordinator run.
type JobSummary struct {
	JobID         string
	AlreadyStored int
	Stored        int
	StoredByOther int
	Failed        int
	NotFound      int
	Aborted       bool
	AbortReason   string
}

// Finished is the number of identities that ended Finished in this run.
func (s JobSummary) Finished() int {
	return s.AlreadyStored + s.Stored + s.StoredByOther
}
