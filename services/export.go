package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bithrah-early-access/models"
	"bithrah-early-access/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrExportDisabled = errors.New("waitlist export is not configured")

const exportKeyPrefix = "exports/early-access/"

type WaitlistEntry struct {
	ID            uint64    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	Batch         int       `json:"batch"`
	ReferralCode  string    `json:"referral_code"`
	ReferralCount int       `json:"referral_count"`
	BonusYears    int       `json:"bonus_years"`
	ReferredBy    *string   `json:"referred_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type WaitlistSnapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Total       int             `json:"total"`
	Users       []WaitlistEntry `json:"users"`
}

type ExportResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Total    int    `json:"total"`
}

type ExportService struct {
	DB       *gorm.DB
	Uploader utils.Uploader
	Now      func() time.Time
}

// NewExportService accepts a nil uploader; Export then reports
// ErrExportDisabled.
func NewExportService(db *gorm.DB, uploader utils.Uploader) *ExportService {
	return &ExportService{DB: db, Uploader: uploader, Now: time.Now}
}

func (s *ExportService) Snapshot(ctx context.Context) (*WaitlistSnapshot, error) {
	var users []models.EarlyAccessUser
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	snap := &WaitlistSnapshot{
		GeneratedAt: s.Now().UTC(),
		Total:       len(users),
		Users:       make([]WaitlistEntry, 0, len(users)),
	}
	for _, u := range users {
		snap.Users = append(snap.Users, WaitlistEntry{
			ID:            u.ID,
			Email:         u.Email,
			Username:      u.Username,
			FullName:      u.FullName,
			Batch:         u.Batch,
			ReferralCode:  u.ReferralCode,
			ReferralCount: u.ReferralCount,
			BonusYears:    u.BonusYears,
			ReferredBy:    u.ReferredBy,
			CreatedAt:     u.CreatedAt,
		})
	}
	return snap, nil
}

// Export uploads a JSON snapshot of the waitlist under
// exports/early-access/<UTC timestamp>.json.
func (s *ExportService) Export(ctx context.Context) (*ExportResult, error) {
	if s.Uploader == nil {
		return nil, ErrExportDisabled
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := exportKeyPrefix + snap.GeneratedAt.Format("20060102T150405Z") + ".json"
	location, err := s.Uploader.Upload(ctx, key, body, "application/json")
	if err != nil {
		return nil, err
	}

	zap.L().Info("Waitlist exported", zap.String("key", key), zap.Int("total", snap.Total))
	return &ExportResult{Key: key, Location: location, Total: snap.Total}, nil
}
