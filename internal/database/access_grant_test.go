package database

import (
	"errors"
	"testing"
	"unlock-api/internal/models"
)

func countGrants(t *testing.T, userID, resourceID string) int64 {
	t.Helper()
	var count int64
	err := DB.Model(&models.AccessGrant{}).
		Where("user_id = ? AND resource_type = ? AND resource_id = ?",
			userID, models.ResourceTypeDiagnosis, resourceID).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count grants: %v", err)
	}
	return count
}

func TestGrantFullAccessInsertsSingleRow(t *testing.T) {
	setupTestDB(t)

	if err := GrantFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1", "purchase-a"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	grant, err := GetAccessGrant("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if err != nil {
		t.Fatalf("get grant: %v", err)
	}
	if !grant.IsFull() {
		t.Fatalf("access_level = %q, want full", grant.AccessLevel)
	}
	if grant.PurchaseID == nil || *grant.PurchaseID != "purchase-a" {
		t.Fatalf("purchase_id = %v, want purchase-a", grant.PurchaseID)
	}
	if grant.ValidFrom == nil {
		t.Error("valid_from not set")
	}
}

func TestGrantFullAccessRepeatKeepsFirstPurchase(t *testing.T) {
	setupTestDB(t)

	// Duplicate completions, possibly from distinct purchases for the same
	// identity. The grant must stay single-rowed and keep the first winner.
	for _, purchaseID := range []string{"purchase-a", "purchase-b", "purchase-c"} {
		if err := GrantFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1", purchaseID); err != nil {
			t.Fatalf("grant %s: %v", purchaseID, err)
		}
	}

	if n := countGrants(t, "user-1", "diag-1"); n != 1 {
		t.Fatalf("grant rows = %d, want 1", n)
	}
	grant, _ := GetAccessGrant("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if grant.PurchaseID == nil || *grant.PurchaseID != "purchase-a" {
		t.Fatalf("purchase_id = %v, want the first winner purchase-a", grant.PurchaseID)
	}
}

func TestGrantFullAccessUpgradesPreview(t *testing.T) {
	setupTestDB(t)

	if err := CreatePreviewGrant("user-1", models.ResourceTypeDiagnosis, "diag-1"); err != nil {
		t.Fatalf("preview grant: %v", err)
	}
	if err := GrantFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1", "purchase-a"); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	if n := countGrants(t, "user-1", "diag-1"); n != 1 {
		t.Fatalf("grant rows = %d, want 1", n)
	}
	grant, _ := GetAccessGrant("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if !grant.IsFull() {
		t.Fatalf("access_level = %q, want full after upgrade", grant.AccessLevel)
	}
	if grant.PurchaseID == nil || *grant.PurchaseID != "purchase-a" {
		t.Fatalf("purchase_id = %v, want purchase-a", grant.PurchaseID)
	}
}

func TestPreviewGrantNeverDowngradesFull(t *testing.T) {
	setupTestDB(t)

	if err := GrantFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1", "purchase-a"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := CreatePreviewGrant("user-1", models.ResourceTypeDiagnosis, "diag-1"); err != nil {
		t.Fatalf("preview after full should be a no-op, got: %v", err)
	}

	grant, _ := GetAccessGrant("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if !grant.IsFull() {
		t.Fatalf("access_level = %q, preview clobbered the full grant", grant.AccessLevel)
	}
	if grant.PurchaseID == nil || *grant.PurchaseID != "purchase-a" {
		t.Fatalf("purchase_id = %v, want purchase-a", grant.PurchaseID)
	}
}

func TestGrantsAreScopedToIdentity(t *testing.T) {
	setupTestDB(t)

	if err := GrantFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1", "purchase-a"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	// Different user, different resource: both are separate identities.
	if err := GrantFullAccess("user-2", models.ResourceTypeDiagnosis, "diag-1", "purchase-b"); err != nil {
		t.Fatalf("grant user-2: %v", err)
	}
	if err := GrantFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-2", "purchase-c"); err != nil {
		t.Fatalf("grant diag-2: %v", err)
	}

	for _, tc := range []struct {
		user, resource, wantPurchase string
	}{
		{"user-1", "diag-1", "purchase-a"},
		{"user-2", "diag-1", "purchase-b"},
		{"user-1", "diag-2", "purchase-c"},
	} {
		grant, err := GetAccessGrant(tc.user, models.ResourceTypeDiagnosis, tc.resource)
		if err != nil {
			t.Fatalf("get %s/%s: %v", tc.user, tc.resource, err)
		}
		if grant.PurchaseID == nil || *grant.PurchaseID != tc.wantPurchase {
			t.Errorf("%s/%s purchase_id = %v, want %s", tc.user, tc.resource, grant.PurchaseID, tc.wantPurchase)
		}
	}
}

func TestHasFullAccess(t *testing.T) {
	setupTestDB(t)

	ok, err := HasFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if err != nil || ok {
		t.Fatalf("no grant yet: ok=%v err=%v", ok, err)
	}

	if err := CreatePreviewGrant("user-1", models.ResourceTypeDiagnosis, "diag-1"); err != nil {
		t.Fatalf("preview grant: %v", err)
	}
	ok, err = HasFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if err != nil || ok {
		t.Fatalf("preview must not count as full: ok=%v err=%v", ok, err)
	}

	if err := GrantFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1", "purchase-a"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ok, err = HasFullAccess("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if err != nil || !ok {
		t.Fatalf("full grant present: ok=%v err=%v", ok, err)
	}
}

func TestGetAccessGrantNotFound(t *testing.T) {
	setupTestDB(t)

	_, err := GetAccessGrant("user-1", models.ResourceTypeDiagnosis, "diag-1")
	if !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("got %v, want ErrGrantNotFound", err)
	}
}
