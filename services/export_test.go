package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bithrah-early-access/services"

	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key         string
	body        []byte
	contentType string
	err         error
}

func (f *fakeUploader) Upload(_ context.Context, key string, body []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key, f.body, f.contentType = key, body, contentType
	return "r2://bithrah-exports/" + key, nil
}

func TestExportUploadsSnapshot(t *testing.T) {
	ledger, conn := newLedger(t)
	ctx := context.Background()

	a, err := ledger.RegisterWithReferral(ctx, registration(1), "")
	require.NoError(t, err)
	_, err = ledger.RegisterWithReferral(ctx, registration(2), a.User.ReferralCode)
	require.NoError(t, err)

	up := &fakeUploader{}
	svc := services.NewExportService(conn, up)
	svc.Now = func() time.Time { return time.Date(2024, 11, 5, 9, 30, 0, 0, time.FixedZone("AST", 3*3600)) }

	res, err := svc.Export(ctx)
	require.NoError(t, err)
	require.Equal(t, "exports/early-access/20241105T063000Z.json", res.Key)
	require.Equal(t, 2, res.Total)
	require.Equal(t, "application/json", up.contentType)

	var snap services.WaitlistSnapshot
	require.NoError(t, json.Unmarshal(up.body, &snap))
	require.Equal(t, 2, snap.Total)
	require.Equal(t, a.User.ID, snap.Users[0].ID)
	require.Equal(t, 1, snap.Users[0].ReferralCount)
	require.NotNil(t, snap.Users[1].ReferredBy)
	require.Equal(t, a.User.ReferralCode, *snap.Users[1].ReferredBy)
}

func TestExportErrors(t *testing.T) {
	conn := newTestDB(t)

	_, err := services.NewExportService(conn, nil).Export(context.Background())
	require.ErrorIs(t, err, services.ErrExportDisabled)

	boom := errors.New("bucket unreachable")
	_, err = services.NewExportService(conn, &fakeUploader{err: boom}).Export(context.Background())
	require.ErrorIs(t, err, boom)
}
