package services_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"bithrah-early-access/models"
	"bithrah-early-access/services"

	"github.com/stretchr/testify/require"
)

type stubEvaluator struct {
	eval  *services.Evaluation
	err   error
	calls int
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ *models.Idea) (*services.Evaluation, error) {
	s.calls++
	return s.eval, s.err
}

func TestIdeaSlug(t *testing.T) {
	require.Equal(t, "smart-farming-app", services.IdeaSlug("  Smart Farming App! "))
	require.Equal(t, "idea", services.IdeaSlug("!!!"))

	arabic := services.IdeaSlug("منصة لتأجير المعدات الزراعية")
	require.NotEmpty(t, arabic)
	require.Regexp(t, regexp.MustCompile(`^[a-z0-9-]+$`), arabic)
}

func TestCreateIdeaDeduplicatesSlug(t *testing.T) {
	conn := newTestDB(t)
	svc := services.NewIdeaService(conn, &stubEvaluator{})
	ctx := context.Background()

	first, err := svc.Create(ctx, services.NewIdea{
		OwnerEmail:  "Owner@Bithrah.test",
		Title:       "Smart Farming App",
		Description: "Rent tractors by the hour.",
		Category:    "AgriTech",
	})
	require.NoError(t, err)
	require.Equal(t, "smart-farming-app", first.Slug)
	require.Equal(t, "owner@bithrah.test", first.OwnerEmail)
	require.Equal(t, "agritech", first.Category)
	require.Equal(t, models.IdeaStatusSubmitted, first.Status)
	require.Len(t, first.ID, 36)

	second, err := svc.Create(ctx, services.NewIdea{
		OwnerEmail:  "other@bithrah.test",
		Title:       "Smart  Farming   App",
		Description: "Same title, different owner.",
	})
	require.NoError(t, err)
	require.Equal(t, "smart-farming-app-2", second.Slug)

	found, err := svc.GetBySlug(ctx, "Smart-Farming-App-2")
	require.NoError(t, err)
	require.Equal(t, second.ID, found.ID)

	_, err = svc.GetBySlug(ctx, "missing")
	require.ErrorIs(t, err, services.ErrIdeaNotFound)
}

func TestEvaluateIdeaPersistsVerdict(t *testing.T) {
	conn := newTestDB(t)
	stub := &stubEvaluator{eval: &services.Evaluation{
		Score:           64,
		Summary:         "فكرة جيدة تحتاج إلى تحقق من السوق",
		Strengths:       []string{"فريق متخصص"},
		Weaknesses:      []string{"تكلفة تشغيل عالية"},
		Recommendations: []string{"إطلاق تجريبي"},
		Model:           "gpt-4o-mini",
	}}
	svc := services.NewIdeaService(conn, stub)
	ctx := context.Background()

	idea, err := svc.Create(ctx, services.NewIdea{
		OwnerEmail:  "owner@bithrah.test",
		Title:       "مقهى متنقل",
		Description: "عربة قهوة مختصة في الفعاليات.",
	})
	require.NoError(t, err)

	evaluated, err := svc.Evaluate(ctx, idea.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stub.calls)
	require.Equal(t, models.IdeaStatusEvaluated, evaluated.Status)

	var stored models.Idea
	require.NoError(t, conn.First(&stored, "id = ?", idea.ID).Error)
	require.NotNil(t, stored.Score)
	require.Equal(t, 64, *stored.Score)
	require.Equal(t, []string{"تكلفة تشغيل عالية"}, stored.Weaknesses)
	require.NotNil(t, stored.EvaluatedAt)
	require.Equal(t, "gpt-4o-mini", stored.EvaluationModel)
}

func TestEvaluateIdeaFailureLeavesIdeaUntouched(t *testing.T) {
	conn := newTestDB(t)
	stub := &stubEvaluator{err: errors.Join(services.ErrEvaluationFailed, errors.New("timeout"))}
	svc := services.NewIdeaService(conn, stub)
	ctx := context.Background()

	idea, err := svc.Create(ctx, services.NewIdea{OwnerEmail: "a@b.test", Title: "Drone delivery", Description: "x"})
	require.NoError(t, err)

	_, err = svc.Evaluate(ctx, idea.ID)
	require.ErrorIs(t, err, services.ErrEvaluationFailed)

	var stored models.Idea
	require.NoError(t, conn.First(&stored, "id = ?", idea.ID).Error)
	require.Equal(t, models.IdeaStatusSubmitted, stored.Status)
	require.Nil(t, stored.Score)

	_, err = svc.Evaluate(ctx, "not-a-uuid")
	require.ErrorIs(t, err, services.ErrIdeaNotFound)
}
