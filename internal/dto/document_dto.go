package dto

import "time"

// DocumentUploadResponse reports the stored supervision letter.
type DocumentUploadResponse struct {
	RelationshipID uint      `json:"relationship_id"`
	URL            string    `json:"url"`
	MimeType       string    `json:"mime_type"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// ComplianceSweepResponse summarises one scheduler-driven sweep run.
type ComplianceSweepResponse struct {
	Checked     int       `json:"checked"`
	Overdue     int       `json:"overdue"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
