package models

import "time"

// EarlyAccessReferral links a referrer to the user who signed up with their
// code. A user can be referred at most once.
type EarlyAccessReferral struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferrerID   uint64    `gorm:"index;not null" json:"referrer_id"`
	ReferredID   uint64    `gorm:"uniqueIndex;not null" json:"referred_id"`
	ReferralCode string    `gorm:"type:varchar(16);not null" json:"referral_code"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	Referrer *EarlyAccessUser `gorm:"foreignKey:ReferrerID;constraint:OnDelete:CASCADE" json:"-"`
	Referred *EarlyAccessUser `gorm:"foreignKey:ReferredID;constraint:OnDelete:CASCADE" json:"-"`
}

func (EarlyAccessReferral) TableName() string {
	return "early_access_referrals"
}
