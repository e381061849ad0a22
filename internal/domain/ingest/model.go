// Package ingest classifies the lines of RIPS text exports and extracts
// patient roster updates and service records from them.
package ingest

import "errors"

// PlaceholderPatientID marks a service record whose patient could not be
// identified on the line.
const PlaceholderPatientID = "SIN_ID"

var (
	ErrNoFiles     = errors.New("no RIPS files selected")
	ErrNoCatalog   = errors.New("service catalog is missing")
	ErrBatchFailed = errors.New("ingestion batch failed")
)

// ServiceRecord is one ingested encounter. Records are values and are never
// modified after extraction.
type ServiceRecord struct {
	ServiceCode string `json:"service_code"`
	PatientID   string `json:"patient_id"`
	ServiceType string `json:"service_type"`
	ServiceName string `json:"service_name"`
	ServiceDate string `json:"service_date"`
}

// DuplicateKey identifies exact duplicates. ServiceDate is compared verbatim.
type DuplicateKey struct {
	PatientID   string `json:"patient_id"`
	ServiceCode string `json:"service_code"`
	ServiceDate string `json:"service_date"`
}

// Key returns the duplicate key of r.
func (r ServiceRecord) Key() DuplicateKey {
	return DuplicateKey{PatientID: r.PatientID, ServiceCode: r.ServiceCode, ServiceDate: r.ServiceDate}
}
