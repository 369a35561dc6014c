package services

import (
	"errors"
	"testing"
	"time"
	"unlock-api/internal/database"
	"unlock-api/internal/models"
)

func TestComputePatternIndex(t *testing.T) {
	cases := []struct {
		date string
		want int
	}{
		{"1900-01-01", 0},  // epoch
		{"1900-01-02", 1},
		{"1900-03-02", 0},  // one full cycle later (1900 is not a leap year)
		{"1899-12-31", 59}, // pre-epoch dates wrap, never go negative
		{"1899-12-02", 30},
	}
	for _, tc := range cases {
		date, err := time.Parse("2006-01-02", tc.date)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.date, err)
		}
		if got := ComputePatternIndex(date); got != tc.want {
			t.Errorf("ComputePatternIndex(%s) = %d, want %d", tc.date, got, tc.want)
		}
	}
}

func TestComputePatternIndexIgnoresTimeAndZone(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	utc := time.Date(1985, time.June, 15, 0, 0, 0, 0, time.UTC)
	late := time.Date(1985, time.June, 15, 23, 59, 59, 0, jst)

	if ComputePatternIndex(utc) != ComputePatternIndex(late) {
		t.Error("time of day or zone changed the pattern index for the same calendar date")
	}
}

func TestCreateDiagnosis(t *testing.T) {
	setupServiceTest(t)
	svc := NewDiagnosisService()

	birthDate := time.Date(1985, time.June, 15, 0, 0, 0, 0, time.UTC)
	diagnosis, err := svc.CreateDiagnosis("user-1", birthDate)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if diagnosis.DiagnosisID == "" {
		t.Error("diagnosis_id not assigned")
	}
	if diagnosis.PatternIndex != ComputePatternIndex(birthDate) {
		t.Errorf("pattern_index = %d, want %d", diagnosis.PatternIndex, ComputePatternIndex(birthDate))
	}

	stored, err := database.GetDiagnosisByID(diagnosis.DiagnosisID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if stored.PatternIndex != diagnosis.PatternIndex {
		t.Errorf("stored pattern_index = %d", stored.PatternIndex)
	}
}

func TestCreateDiagnosisValidation(t *testing.T) {
	setupServiceTest(t)
	svc := NewDiagnosisService()

	birthDate := time.Date(1985, time.June, 15, 0, 0, 0, 0, time.UTC)
	if _, err := svc.CreateDiagnosis("", birthDate); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty user: got %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.CreateDiagnosis("user-1", time.Now().AddDate(1, 0, 0)); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("future birth date: got %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.CreateDiagnosis("user-1", time.Time{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("zero birth date: got %v, want ErrInvalidRequest", err)
	}
}

func TestGetDiagnosisRecordsPreviewGrant(t *testing.T) {
	setupServiceTest(t)
	svc := NewDiagnosisService()
	diagnosisID := seedDiagnosis(t, "user-1")

	_, level, err := svc.GetDiagnosis(diagnosisID, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if level != models.AccessLevelPreview {
		t.Fatalf("access level = %q, want preview", level)
	}

	grant, err := database.GetAccessGrant("user-1", models.ResourceTypeDiagnosis, diagnosisID)
	if err != nil {
		t.Fatalf("preview grant not recorded: %v", err)
	}
	if grant.IsFull() {
		t.Error("first view must record preview, not full")
	}

	// After purchase the same lookup reports full.
	if err := database.GrantFullAccess("user-1", models.ResourceTypeDiagnosis, diagnosisID, "purchase-a"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	_, level, err = svc.GetDiagnosis(diagnosisID, "user-1")
	if err != nil {
		t.Fatalf("get after unlock: %v", err)
	}
	if level != models.AccessLevelFull {
		t.Fatalf("access level = %q, want full", level)
	}
}

func TestGetDiagnosisUnknownID(t *testing.T) {
	setupServiceTest(t)
	svc := NewDiagnosisService()

	if _, _, err := svc.GetDiagnosis("no-such-id", "user-1"); !errors.Is(err, database.ErrDiagnosisNotFound) {
		t.Fatalf("got %v, want ErrDiagnosisNotFound", err)
	}
}
