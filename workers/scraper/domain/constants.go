package domain

const (
	// Scraping status values stored per (job, identity)
	StatusPending  ScrapingStatus = "pending"
	StatusFinished ScrapingStatus = "finished"
	StatusFailed   ScrapingStatus = "failed"

	// Job summary statuses
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"

	// Job liveness values, mirroring the broker's queued/started states
	LivenessQueued  = "queued"
	LivenessStarted = "started"

	// Redis Key Patterns
	RedisKeyJobLiveness = "krsdf:job:%s:liveness"

	// Message Types
	MsgTypeScrapeDocuments = "scrape_documents"

	// Status messages written to ScrapingStatusRecord.message
	MsgAlreadyStored      = "document already stored"
	MsgStoredByOtherJob   = "document stored by another job"
	MsgStored             = "document scraped and stored"
	MsgNotFoundInRegistry = "document was not located on any registry listing page"
	MsgJobEndedIncomplete = "job ended without completing"
	MsgJobAbortedPrefix   = "job aborted: "

	// Rows per portal listing page
	PageSize = 10
)
