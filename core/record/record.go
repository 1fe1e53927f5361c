package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Record types accepted by the schema.
const (
	TypeDiagnosis        = "diagnosis"
	TypePrescription     = "prescription"
	TypeLabResult        = "lab_result"
	TypeImaging          = "imaging"
	TypeDischargeSummary = "discharge_summary"
	TypeNote             = "note"
)

// ErrInvalid is returned when a record fails validation.
var ErrInvalid = errors.New("invalid record")

// Record is a clinical entry for one patient. Once embedded in a block it never changes;
// corrections are new records whose Amends field points at the original.
type Record struct {
	ID          string                 `json:"id"`
	PatientID   string                 `json:"patientId"`
	RecordType  string                 `json:"recordType"`
	Diagnosis   string                 `json:"diagnosis,omitempty"`
	Treatment   string                 `json:"treatment,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	AuthorID    string                 `json:"authorId"`
	CreatedAt   time.Time              `json:"createdAt"`
	Amends      string                 `json:"amends,omitempty"`
	AmendReason string                 `json:"amendReason,omitempty"`
}

const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "patientId", "recordType", "authorId", "createdAt"],
  "properties": {
    "id": {"type": "string", "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"},
    "patientId": {"type": "string", "minLength": 1, "maxLength": 128},
    "recordType": {"enum": ["diagnosis", "prescription", "lab_result", "imaging", "discharge_summary", "note"]},
    "diagnosis": {"type": "string", "maxLength": 512},
    "treatment": {"type": "string", "maxLength": 2048},
    "notes": {"type": "string", "maxLength": 4096},
    "data": {"type": "object"},
    "authorId": {"type": "string", "minLength": 1, "maxLength": 128},
    "createdAt": {"type": "string", "format": "date-time"},
    "amends": {"type": "string"},
    "amendReason": {"type": "string", "maxLength": 256}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(recordSchema)

// Validate checks r against the record schema and the cross-field rules.
func Validate(r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("could not marshal record to JSON: %w", err)
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	if r.RecordType == TypeDiagnosis && (strings.TrimSpace(r.Diagnosis) == "" || strings.TrimSpace(r.Treatment) == "") {
		return fmt.Errorf("%w: diagnosis records need both diagnosis and treatment", ErrInvalid)
	}
	if r.Amends != "" && strings.TrimSpace(r.AmendReason) == "" {
		return fmt.Errorf("%w: amendments need an amendReason", ErrInvalid)
	}
	if r.Amends == r.ID {
		return fmt.Errorf("%w: a record cannot amend itself", ErrInvalid)
	}
	return nil
}

// Fingerprint returns hex(sha256(canonical JSON of r)). Patients and auditors compare it with a
// hash they were given to confirm the record was not altered.
func Fingerprint(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
