package models

import (
	"time"
)

// Diagnosis 診断結果レコード
// The pattern index is derived from the birth date alone; the paid content
// unlocked by a purchase is keyed by this record's DiagnosisID.
type Diagnosis struct {
	BaseModel

	DiagnosisID  string    `json:"diagnosis_id" gorm:"not null;size:36;uniqueIndex"`
	UserID       string    `json:"user_id" gorm:"not null;size:64;index"`
	BirthDate    time.Time `json:"birth_date" gorm:"not null"`
	PatternIndex int       `json:"pattern_index" gorm:"not null"` // 0-59
}

// TableName 指定表名
func (Diagnosis) TableName() string {
	return "diagnoses"
}
