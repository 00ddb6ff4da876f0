package nursing

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/pkg/apperr"
)

// VitalSigns is one set of measurements taken for a resident.
type VitalSigns struct {
	ID              uuid.UUID  `json:"id"`
	ResidentID      uuid.UUID  `json:"resident_id"`
	RecordedBy      *uuid.UUID `json:"recorded_by,omitempty"`
	RecordedAt      time.Time  `json:"recorded_at"`
	Temperature     *float64   `json:"temperature,omitempty"`
	BloodPressure   *string    `json:"blood_pressure,omitempty"`
	HeartRate       *int       `json:"heart_rate,omitempty"`
	RespiratoryRate *int       `json:"respiratory_rate,omitempty"`
	OxygenLevel     *int       `json:"oxygen_level,omitempty"`
	Weight          *float64   `json:"weight,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

var bloodPressureRe = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)

// Validate checks every present measurement against its plausible range.
// At least one measurement is required.
func (v *VitalSigns) Validate() error {
	verr := apperr.NewValidationError()
	if v.Temperature == nil && v.BloodPressure == nil && v.HeartRate == nil &&
		v.RespiratoryRate == nil && v.OxygenLevel == nil && v.Weight == nil {
		verr.Add("vital_signs", "at least one measurement is required")
	}
	if v.Temperature != nil && (*v.Temperature < 30 || *v.Temperature > 45) {
		verr.Add("temperature", "must be between 30 and 45")
	}
	if v.BloodPressure != nil && !bloodPressureRe.MatchString(*v.BloodPressure) {
		verr.Add("blood_pressure", "must look like 120/80")
	}
	if v.HeartRate != nil && (*v.HeartRate < 20 || *v.HeartRate > 250) {
		verr.Add("heart_rate", "must be between 20 and 250")
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate < 5 || *v.RespiratoryRate > 60) {
		verr.Add("respiratory_rate", "must be between 5 and 60")
	}
	if v.OxygenLevel != nil && (*v.OxygenLevel < 50 || *v.OxygenLevel > 100) {
		verr.Add("oxygen_level", "must be between 50 and 100")
	}
	if v.Weight != nil && (*v.Weight <= 0 || *v.Weight > 300) {
		verr.Add("weight", "must be between 0 and 300")
	}
	return verr.OrNil()
}

type Filter struct {
	ResidentID *uuid.UUID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

func (f Filter) Match(v *VitalSigns) bool {
	if f.ResidentID != nil && v.ResidentID != *f.ResidentID {
		return false
	}
	if f.From != nil && v.RecordedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && v.RecordedAt.After(*f.To) {
		return false
	}
	return true
}
