// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ContentIngestTask represents the data structure for a document ingest job.
type ContentIngestTask struct {
	UploadID   string `json:"upload_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	Subject    string `json:"subject"`
}
