package database

import (
	"errors"
	"unlock-api/internal/models"

	"gorm.io/gorm"
)

// ErrDiagnosisNotFound is returned when no diagnosis matches the lookup.
var ErrDiagnosisNotFound = errors.New("diagnosis not found")

// CreateDiagnosis 診断結果を作成
func CreateDiagnosis(diagnosis *models.Diagnosis) error {
	return DB.Create(diagnosis).Error
}

// GetDiagnosisByID 診断IDで取得
func GetDiagnosisByID(diagnosisID string) (*models.Diagnosis, error) {
	var diagnosis models.Diagnosis
	err := DB.Where("diagnosis_id = ?", diagnosisID).First(&diagnosis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiagnosisNotFound
		}
		return nil, err
	}
	return &diagnosis, nil
}
