package ehr

import "time"

// revokeEvent is the body of a revoke block.
type revokeEvent struct {
	PatientID string    `json:"patientId"`
	DoctorID  string    `json:"doctorId"`
	RevokedAt time.Time `json:"revokedAt"`
}
