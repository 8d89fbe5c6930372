package models

import "time"

// EarlyAccessUser is a waitlist registration. ReferralCount and BonusYears are
// only written by the referral ledger.
type EarlyAccessUser struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email         string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	FullName      string    `gorm:"type:varchar(255);not null" json:"full_name"`
	Phone         *string   `gorm:"type:varchar(32)" json:"phone,omitempty"`
	Source        string    `gorm:"type:varchar(32);not null;default:'website'" json:"source"`
	ReferralCode  string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"referral_code"`
	ReferredBy    *string   `gorm:"type:varchar(16);index" json:"referred_by,omitempty"` // referrer's code, not a foreign key
	ReferralCount int       `gorm:"not null;default:0" json:"referral_count"`
	BonusYears    int       `gorm:"not null;default:0" json:"bonus_years"`
	Batch         int       `gorm:"not null;default:1" json:"batch"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EarlyAccessUser) TableName() string {
	return "early_access_users"
}
