package services

import (
	"fmt"
	"strings"
	"time"
	"unlock-api/internal/database"
	"unlock-api/internal/models"
	"unlock-api/pkg/logging"

	"github.com/google/uuid"
)

// patternEpoch anchors the pattern arithmetic. 六十干支 cycle.
var patternEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// patternCount is the number of distinct diagnosis patterns.
const patternCount = 60

// DiagnosisService creates and resolves diagnosis records. Content rendering
// lives elsewhere; this service only owns the pattern index and the implicit
// preview grant on first view.
type DiagnosisService struct{}

// NewDiagnosisService creates a new diagnosis service.
func NewDiagnosisService() *DiagnosisService {
	return &DiagnosisService{}
}

// ComputePatternIndex maps a birth date to its pattern index: whole days
// since the epoch, modulo the cycle length.
func ComputePatternIndex(birthDate time.Time) int {
	day := time.Date(birthDate.Year(), birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(patternEpoch).Hours() / 24)
	index := days % patternCount
	if index < 0 {
		index += patternCount
	}
	return index
}

// CreateDiagnosis computes the pattern for a birth date and persists the
// diagnosis record.
func (s *DiagnosisService) CreateDiagnosis(userID string, birthDate time.Time) (*models.Diagnosis, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if birthDate.IsZero() || birthDate.After(time.Now()) {
		return nil, fmt.Errorf("%w: birth_date must be a past date", ErrInvalidRequest)
	}

	diagnosis := &models.Diagnosis{
		DiagnosisID:  uuid.NewString(),
		UserID:       userID,
		BirthDate:    birthDate,
		PatternIndex: ComputePatternIndex(birthDate),
	}
	if err := database.CreateDiagnosis(diagnosis); err != nil {
		return nil, fmt.Errorf("failed to create diagnosis: %w", err)
	}

	logging.Infof("Diagnosis created - diagnosis_id: %s, pattern_index: %d",
		diagnosis.DiagnosisID, diagnosis.PatternIndex)
	return diagnosis, nil
}

// GetDiagnosis resolves a diagnosis and the viewer's access level, recording
// the implicit preview grant on a first view by the owner.
func (s *DiagnosisService) GetDiagnosis(diagnosisID, viewerUserID string) (*models.Diagnosis, string, error) {
	diagnosis, err := database.GetDiagnosisByID(diagnosisID)
	if err != nil {
		return nil, "", err
	}

	accessLevel := models.AccessLevelPreview
	if viewerUserID != "" {
		// First view establishes the preview grant; the upsert does
		// nothing when a grant (preview or full) already exists.
		if err := database.CreatePreviewGrant(viewerUserID, models.ResourceTypeDiagnosis, diagnosisID); err != nil {
			logging.Errorf("Failed to record preview grant - diagnosis_id: %s, error: %v", diagnosisID, err)
		}
		if grant, err := database.GetAccessGrant(viewerUserID, models.ResourceTypeDiagnosis, diagnosisID); err == nil {
			accessLevel = grant.AccessLevel
		}
	}

	return diagnosis, accessLevel, nil
}
