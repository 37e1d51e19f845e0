package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	errorMessageMissingSourceURL     = "storage: missing branding source url"
	errorMessageEncodeBranding       = "storage: encode branding snapshot"
	errorMessageDecodeBranding       = "storage: decode branding snapshot"
	errorMessageSaveBrandingSnapshot = "storage: save branding snapshot"
	errorMessageLoadBrandingSnapshot = "storage: load branding snapshot"
)

var (
	// ErrMissingSourceURL indicates a branding snapshot was addressed without a CRM base URL.
	ErrMissingSourceURL = errors.New(errorMessageMissingSourceURL)
	// ErrSnapshotNotFound indicates no branding snapshot exists for the CRM base URL.
	ErrSnapshotNotFound = errors.New("storage: branding snapshot not found")
)

// BrandingSnapshotRepository persists the last known branding per CRM backend.
type BrandingSnapshotRepository struct {
	database *gorm.DB
	now      func() time.Time
}

// NewBrandingSnapshotRepository constructs a repository over database.
func NewBrandingSnapshotRepository(database *gorm.DB) *BrandingSnapshotRepository {
	return &BrandingSnapshotRepository{database: database, now: time.Now}
}

// Save upserts the snapshot for sourceURL.
func (repository *BrandingSnapshotRepository) Save(ctx context.Context, sourceURL string, branding model.Branding) error {
	normalizedSourceURL := strings.TrimSpace(sourceURL)
	if normalizedSourceURL == "" {
		return ErrMissingSourceURL
	}
	payload, encodeErr := json.Marshal(branding)
	if encodeErr != nil {
		return fmt.Errorf("%s: %w", errorMessageEncodeBranding, encodeErr)
	}
	snapshot := model.BrandingSnapshot{
		ID:         NewID(),
		SourceURL:  normalizedSourceURL,
		Payload:    string(payload),
		CapturedAt: repository.now().UTC(),
	}
	saveErr := repository.database.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_url"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "captured_at", "updated_at"}),
	}).Create(&snapshot).Error
	if saveErr != nil {
		return fmt.Errorf("%s: %w", errorMessageSaveBrandingSnapshot, saveErr)
	}
	return nil
}

// Load returns the stored branding for sourceURL and the time it was captured.
func (repository *BrandingSnapshotRepository) Load(ctx context.Context, sourceURL string) (model.Branding, time.Time, error) {
	normalizedSourceURL := strings.TrimSpace(sourceURL)
	if normalizedSourceURL == "" {
		return model.Branding{}, time.Time{}, ErrMissingSourceURL
	}
	var snapshot model.BrandingSnapshot
	loadErr := repository.database.WithContext(ctx).Where("source_url = ?", normalizedSourceURL).First(&snapshot).Error
	if errors.Is(loadErr, gorm.ErrRecordNotFound) {
		return model.Branding{}, time.Time{}, ErrSnapshotNotFound
	}
	if loadErr != nil {
		return model.Branding{}, time.Time{}, fmt.Errorf("%s: %w", errorMessageLoadBrandingSnapshot, loadErr)
	}
	var branding model.Branding
	if decodeErr := json.Unmarshal([]byte(snapshot.Payload), &branding); decodeErr != nil {
		return model.Branding{}, time.Time{}, fmt.Errorf("%s: %w", errorMessageDecodeBranding, decodeErr)
	}
	return branding, snapshot.CapturedAt, nil
}
