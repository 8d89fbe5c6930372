package services_test

import (
	"context"
	"testing"
	"time"

	"bithrah-early-access/models"

	"github.com/stretchr/testify/require"
)

func TestLedgerSchedulerRepairsDrift(t *testing.T) {
	ledger, conn := newLedger(t)
	ctx := context.Background()

	a, err := ledger.RegisterWithReferral(ctx, registration(1), "")
	require.NoError(t, err)
	_, err = ledger.RegisterWithReferral(ctx, registration(2), a.User.ReferralCode)
	require.NoError(t, err)

	require.NoError(t, conn.Model(&models.EarlyAccessUser{}).Where("id = ?", a.User.ID).
		Updates(map[string]any{"referral_count": 10, "bonus_years": 2}).Error)

	sched, err := ledger.StartLedgerScheduler(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Shutdown() })

	require.Eventually(t, func() bool {
		var u models.EarlyAccessUser
		if err := conn.First(&u, a.User.ID).Error; err != nil {
			return false
		}
		return u.ReferralCount == 1 && u.BonusYears == 0
	}, 5*time.Second, 20*time.Millisecond)
}
