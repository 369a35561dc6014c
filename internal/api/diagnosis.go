package api

import (
	"errors"
	"net/http"
	"time"
	"unlock-api/internal/database"
	"unlock-api/internal/models"
	"unlock-api/internal/services"

	"github.com/gin-gonic/gin"
)

// CreateDiagnosisRequest represents a create diagnosis request
type CreateDiagnosisRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	BirthDate string `json:"birth_date" binding:"required"` // YYYY-MM-DD
}

// DiagnosisResponse represents a diagnosis response
type DiagnosisResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	DiagnosisID  string `json:"diagnosis_id,omitempty"`
	PatternIndex int    `json:"pattern_index,omitempty"`
	AccessLevel  string `json:"access_level,omitempty"`
}

// CreateDiagnosis creates a diagnosis from a birth date
// POST /api/diagnosis
func CreateDiagnosis(c *gin.Context) {
	var req CreateDiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, DiagnosisResponse{
			Success: false,
			Message: "Invalid request format: " + err.Error(),
		})
		return
	}

	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, DiagnosisResponse{
			Success: false,
			Message: "birth_date must be formatted as YYYY-MM-DD",
		})
		return
	}

	diagnosis, err := diagnosisSvc.CreateDiagnosis(req.UserID, birthDate)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.JSON(status, DiagnosisResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, DiagnosisResponse{
		Success:      true,
		DiagnosisID:  diagnosis.DiagnosisID,
		PatternIndex: diagnosis.PatternIndex,
		AccessLevel:  models.AccessLevelPreview,
	})
}

// GetDiagnosis returns a diagnosis and the viewer's access level
// GET /api/diagnosis/:id?user_id=xxx
func GetDiagnosis(c *gin.Context) {
	diagnosisID := c.Param("id")
	viewerUserID := c.Query("user_id")

	diagnosis, accessLevel, err := diagnosisSvc.GetDiagnosis(diagnosisID, viewerUserID)
	if err != nil {
		if errors.Is(err, database.ErrDiagnosisNotFound) {
			c.JSON(http.StatusNotFound, DiagnosisResponse{
				Success: false,
				Message: "Diagnosis not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, DiagnosisResponse{
			Success: false,
			Message: "Failed to get diagnosis",
		})
		return
	}

	c.JSON(http.StatusOK, DiagnosisResponse{
		Success:      true,
		DiagnosisID:  diagnosis.DiagnosisID,
		PatternIndex: diagnosis.PatternIndex,
		AccessLevel:  accessLevel,
	})
}
