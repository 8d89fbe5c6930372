package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bithrah-early-access/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

var ErrIdeaNotFound = errors.New("idea not found")

const maxSlugLength = 120

type NewIdea struct {
	OwnerEmail  string
	Title       string
	Description string
	Category    string
	FundingGoal *float64
}

type IdeaService struct {
	DB        *gorm.DB
	Evaluator Evaluator
}

func NewIdeaService(db *gorm.DB, evaluator Evaluator) *IdeaService {
	return &IdeaService{DB: db, Evaluator: evaluator}
}

func init() {
	slug.MaxLength = maxSlugLength
}

// IdeaSlug builds the URL slug for a title. Arabic titles are transliterated;
// a title that transliterates to nothing falls back to "idea".
func IdeaSlug(title string) string {
	s := slug.MakeLang(norm.NFKC.String(title), "en")
	if s == "" {
		return "idea"
	}
	return s
}

func (s *IdeaService) Create(ctx context.Context, in NewIdea) (*models.Idea, error) {
	idea := &models.Idea{
		ID:          uuid.NewString(),
		OwnerEmail:  strings.ToLower(strings.TrimSpace(in.OwnerEmail)),
		Title:       strings.Join(strings.Fields(norm.NFKC.String(in.Title)), " "),
		Description: strings.TrimSpace(norm.NFKC.String(in.Description)),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		FundingGoal: in.FundingGoal,
		Status:      models.IdeaStatusSubmitted,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := IdeaSlug(idea.Title)
		candidate := base
		for i := 2; ; i++ {
			var n int64
			if err := tx.Unscoped().Model(&models.Idea{}).Where("slug = ?", candidate).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				break
			}
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		idea.Slug = candidate
		return tx.Create(idea).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	zap.L().Info("Idea submitted", zap.String("idea_id", idea.ID), zap.String("slug", idea.Slug))
	return idea, nil
}

func (s *IdeaService) GetBySlug(ctx context.Context, ideaSlug string) (*models.Idea, error) {
	var idea models.Idea
	if err := s.DB.WithContext(ctx).Where("slug = ?", strings.ToLower(ideaSlug)).First(&idea).Error; err != nil {
		return nil, classifyIdeaError(err)
	}
	return &idea, nil
}

func (s *IdeaService) GetByID(ctx context.Context, id string) (*models.Idea, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrIdeaNotFound
	}

	var idea models.Idea
	if err := s.DB.WithContext(ctx).First(&idea, "id = ?", id).Error; err != nil {
		return nil, classifyIdeaError(err)
	}
	return &idea, nil
}

// Evaluate asks the model for a verdict and stores it on the idea. A failed
// evaluation leaves the idea untouched.
func (s *IdeaService) Evaluate(ctx context.Context, id string) (*models.Idea, error) {
	idea, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	eval, err := s.Evaluator.Evaluate(ctx, idea)
	if err != nil {
		zap.L().Warn("Idea evaluation failed", zap.String("idea_id", id), zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	idea.Score = &eval.Score
	idea.Summary = eval.Summary
	idea.Strengths = eval.Strengths
	idea.Weaknesses = eval.Weaknesses
	idea.Recommendations = eval.Recommendations
	idea.EvaluationModel = eval.Model
	idea.EvaluatedAt = &now
	idea.Status = models.IdeaStatusEvaluated

	if err := s.DB.WithContext(ctx).Save(idea).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	zap.L().Info("Idea evaluated", zap.String("idea_id", id), zap.Int("score", eval.Score))
	return idea, nil
}

func classifyIdeaError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrIdeaNotFound
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}
