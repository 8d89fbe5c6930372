package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"bithrah-early-access/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDuplicateIdentity   = errors.New("email or username already registered")
	ErrSelfReferral        = errors.New("a user cannot use their own referral code")
	ErrUserNotFound        = errors.New("early access user not found")
	ErrStorageFailure      = errors.New("storage failure")
	ErrCodeExhausted       = errors.New("could not allocate a unique referral code")
	ErrInvalidRegistration = errors.New("invalid registration")
)

// ReferralsPerBonusYear is the product rule: every 5 credited referrals earn
// one extra year of free subscription.
const ReferralsPerBonusYear = 5

const (
	maxCodeAttempts     = 5
	maxRegisterAttempts = 3
)

// ComputeBonusYears is the single source of the bonus rule. Integer division,
// never rounded up.
func ComputeBonusYears(referralCount int) int {
	if referralCount <= 0 {
		return 0
	}
	return referralCount / ReferralsPerBonusYear
}

// ReferralsUntilNextBonus returns how many more referrals are needed before
// the next bonus year is credited.
func ReferralsUntilNextBonus(referralCount int) int {
	if referralCount < 0 {
		referralCount = 0
	}
	return ReferralsPerBonusYear - referralCount%ReferralsPerBonusYear
}

type ReferralStatus string

const (
	ReferralStatusNone        ReferralStatus = "none"
	ReferralStatusApplied     ReferralStatus = "applied"
	ReferralStatusUnknownCode ReferralStatus = "unknown_code"
)

type Registration struct {
	Email    string
	Username string
	FullName string
	Phone    string
	Source   string
}

type RegistrationResult struct {
	User           *models.EarlyAccessUser
	ReferralStatus ReferralStatus
	Referrer       *models.EarlyAccessUser
}

type ReferralStats struct {
	UserID              uint64 `json:"user_id"`
	ReferralCode        string `json:"referral_code"`
	ReferralLink        string `json:"referral_link"`
	ReferralCount       int    `json:"referral_count"`
	BonusYears          int    `json:"bonus_years"`
	ReferralsToNextYear int    `json:"referrals_to_next_year"`
	Batch               int    `json:"batch"`
}

type ReconcileReport struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
}

type LedgerService struct {
	DB            *gorm.DB
	Batch         int
	PublicBaseURL string

	// NewCode is swapped in tests to force collisions.
	NewCode func() (string, error)
}

func NewLedgerService(db *gorm.DB, batch int, publicBaseURL string) *LedgerService {
	if batch < 1 {
		batch = 1
	}
	return &LedgerService{
		DB:            db,
		Batch:         batch,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		NewCode:       GenerateReferralCode,
	}
}

// RegisterWithReferral creates the user and, when referralCode resolves to an
// existing user, credits that referrer. Everything happens in one transaction.
// An unknown or malformed code is not an error: the user is registered and
// the result reports ReferralStatusUnknownCode.
func (s *LedgerService) RegisterWithReferral(ctx context.Context, reg Registration, referralCode string) (*RegistrationResult, error) {
	reg = normalizeRegistration(reg)
	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	rawCode := strings.TrimSpace(referralCode)
	code := NormalizeReferralCode(rawCode)

	var (
		result *RegistrationResult
		err    error
	)
	// A unique violation that slipped past the in-transaction checks is a
	// concurrent insert. Retrying re-runs those checks, so a taken email or
	// username comes back as ErrDuplicateIdentity and a taken referral code
	// gets a fresh one.
	for attempt := 1; attempt <= maxRegisterAttempts; attempt++ {
		result, err = s.register(ctx, reg, rawCode, code)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		zap.L().Debug("Registration raced on a unique key, retrying", zap.Int("attempt", attempt))
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, ErrCodeExhausted)
	}
	if err != nil {
		return nil, classifyLedgerError(err)
	}

	fields := []zap.Field{
		zap.Uint64("user_id", result.User.ID),
		zap.String("referral_status", string(result.ReferralStatus)),
	}
	if result.Referrer != nil {
		fields = append(fields,
			zap.Uint64("referrer_id", result.Referrer.ID),
			zap.Int("referral_count", result.Referrer.ReferralCount),
			zap.Int("bonus_years", result.Referrer.BonusYears),
		)
	}
	zap.L().Info("Early access registration", fields...)

	return result, nil
}

func (s *LedgerService) register(ctx context.Context, reg Registration, rawCode, code string) (*RegistrationResult, error) {
	result := &RegistrationResult{ReferralStatus: ReferralStatusNone}
	if rawCode != "" && code == "" {
		result.ReferralStatus = ReferralStatusUnknownCode
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.EarlyAccessUser{}).
			Where("email = ? OR username = ?", reg.Email, reg.Username).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrDuplicateIdentity
		}

		var referrer *models.EarlyAccessUser
		if code != "" {
			var found models.EarlyAccessUser
			err := tx.Where("referral_code = ?", code).First(&found).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				result.ReferralStatus = ReferralStatusUnknownCode
			case err != nil:
				return err
			default:
				referrer = &found
			}
		}

		ownCode, err := s.allocateCode(tx)
		if err != nil {
			return err
		}

		user := &models.EarlyAccessUser{
			Email:        reg.Email,
			Username:     reg.Username,
			FullName:     reg.FullName,
			Source:       reg.Source,
			ReferralCode: ownCode,
			Batch:        s.Batch,
		}
		if reg.Phone != "" {
			user.Phone = &reg.Phone
		}
		if referrer != nil {
			user.ReferredBy = &referrer.ReferralCode
		}

		if err := tx.Create(user).Error; err != nil {
			return err
		}

		if referrer != nil {
			updated, err := creditReferral(tx, referrer, user)
			if err != nil {
				return err
			}
			result.Referrer = updated
			result.ReferralStatus = ReferralStatusApplied
		}

		result.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// creditReferral records referrer -> referred and bumps the referrer's
// counters. The increment is a single UPDATE so concurrent credits against
// the same referrer serialize on the row instead of losing updates.
func creditReferral(tx *gorm.DB, referrer, referred *models.EarlyAccessUser) (*models.EarlyAccessUser, error) {
	if referrer.ID == referred.ID {
		return nil, ErrSelfReferral
	}

	if err := tx.Create(&models.EarlyAccessReferral{
		ReferrerID:   referrer.ID,
		ReferredID:   referred.ID,
		ReferralCode: referrer.ReferralCode,
	}).Error; err != nil {
		return nil, err
	}

	res := tx.Model(&models.EarlyAccessUser{}).
		Where("id = ?", referrer.ID).
		Update("referral_count", gorm.Expr("referral_count + ?", 1))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, ErrUserNotFound
	}

	return syncBonusYears(tx, referrer.ID)
}

// syncBonusYears re-reads the counter inside the transaction (the row is
// already locked by our own UPDATE) and stores the matching bonus years.
func syncBonusYears(tx *gorm.DB, userID uint64) (*models.EarlyAccessUser, error) {
	var user models.EarlyAccessUser
	if err := tx.First(&user, userID).Error; err != nil {
		return nil, err
	}

	years := ComputeBonusYears(user.ReferralCount)
	if years != user.BonusYears {
		if err := tx.Model(&user).Update("bonus_years", years).Error; err != nil {
			return nil, err
		}
		user.BonusYears = years
	}
	return &user, nil
}

func (s *LedgerService) allocateCode(tx *gorm.DB) (string, error) {
	for range maxCodeAttempts {
		code, err := s.NewCode()
		if err != nil {
			return "", err
		}

		var n int64
		if err := tx.Model(&models.EarlyAccessUser{}).
			Where("referral_code = ?", code).
			Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
		zap.L().Debug("Referral code collision, retrying", zap.String("code", code))
	}
	return "", ErrCodeExhausted
}

func (s *LedgerService) GetByID(ctx context.Context, id uint64) (*models.EarlyAccessUser, error) {
	var user models.EarlyAccessUser
	if err := s.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, classifyLedgerError(err)
	}
	return &user, nil
}

func (s *LedgerService) GetByReferralCode(ctx context.Context, code string) (*models.EarlyAccessUser, error) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return nil, ErrUserNotFound
	}

	var user models.EarlyAccessUser
	if err := s.DB.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error; err != nil {
		return nil, classifyLedgerError(err)
	}
	return &user, nil
}

func (s *LedgerService) Stats(ctx context.Context, id uint64) (*ReferralStats, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ReferralStats{
		UserID:              user.ID,
		ReferralCode:        user.ReferralCode,
		ReferralLink:        s.ReferralLink(user.ReferralCode),
		ReferralCount:       user.ReferralCount,
		BonusYears:          user.BonusYears,
		ReferralsToNextYear: ReferralsUntilNextBonus(user.ReferralCount),
		Batch:               user.Batch,
	}, nil
}

// ReferralLink is the shareable sign-up URL, e.g.
// https://bithrah.com/early-access?ref=K7QX2M9A
func (s *LedgerService) ReferralLink(code string) string {
	return s.PublicBaseURL + "/early-access?ref=" + url.QueryEscape(code)
}

// ListReferred returns the users who signed up with id's code, newest first.
func (s *LedgerService) ListReferred(ctx context.Context, id uint64) ([]models.EarlyAccessUser, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}

	var users []models.EarlyAccessUser
	err := s.DB.WithContext(ctx).
		Joins("INNER JOIN early_access_referrals r ON r.referred_id = early_access_users.id").
		Where("r.referrer_id = ?", id).
		Order("r.created_at DESC").
		Order("r.id DESC").
		Find(&users).Error
	if err != nil {
		return nil, classifyLedgerError(err)
	}
	return users, nil
}

func (s *LedgerService) Leaderboard(ctx context.Context, limit int) ([]models.EarlyAccessUser, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var users []models.EarlyAccessUser
	err := s.DB.WithContext(ctx).
		Where("referral_count > 0").
		Order("referral_count DESC").
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, classifyLedgerError(err)
	}
	return users, nil
}

// Purge removes a user and every referral row touching them. If the user had
// been referred, the referrer loses that credit so counters keep matching the
// ledger.
func (s *LedgerService) Purge(ctx context.Context, id uint64) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.EarlyAccessUser
		if err := tx.First(&user, id).Error; err != nil {
			return err
		}

		var inbound models.EarlyAccessReferral
		err := tx.Where("referred_id = ?", id).First(&inbound).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			if err := tx.Model(&models.EarlyAccessUser{}).
				Where("id = ? AND referral_count > 0", inbound.ReferrerID).
				Update("referral_count", gorm.Expr("referral_count - ?", 1)).Error; err != nil {
				return err
			}
			if _, err := syncBonusYears(tx, inbound.ReferrerID); err != nil {
				return err
			}
		}

		if err := tx.Where("referrer_id = ? OR referred_id = ?", id, id).
			Delete(&models.EarlyAccessReferral{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return classifyLedgerError(err)
	}

	zap.L().Info("Early access user purged", zap.Uint64("user_id", id))
	return nil
}

type referrerTotal struct {
	ReferrerID uint64
	Total      int
}

// Reconcile recomputes every user's counters from the referral rows and
// repairs any drift.
func (s *LedgerService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Counters are locked before the referral rows are counted. A credit
		// in flight either committed before the lock (its row is counted) or
		// waits on its counter UPDATE (its row is not visible yet).
		var users []models.EarlyAccessUser
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "referral_count", "bonus_years").
			Order("id").
			Find(&users).Error; err != nil {
			return err
		}
		report.Checked = len(users)

		var totals []referrerTotal
		if err := tx.Model(&models.EarlyAccessReferral{}).
			Select("referrer_id, COUNT(*) AS total").
			Group("referrer_id").
			Scan(&totals).Error; err != nil {
			return err
		}

		want := make(map[uint64]int, len(totals))
		for _, t := range totals {
			want[t.ReferrerID] = t.Total
		}

		for _, u := range users {
			count := want[u.ID]
			years := ComputeBonusYears(count)
			if u.ReferralCount == count && u.BonusYears == years {
				continue
			}

			zap.L().Warn("Ledger drift repaired",
				zap.Uint64("user_id", u.ID),
				zap.Int("stored_count", u.ReferralCount),
				zap.Int("ledger_count", count),
				zap.Int("stored_bonus_years", u.BonusYears),
				zap.Int("bonus_years", years),
			)

			if err := tx.Model(&models.EarlyAccessUser{}).
				Where("id = ?", u.ID).
				Updates(map[string]any{"referral_count": count, "bonus_years": years}).Error; err != nil {
				return err
			}
			report.Repaired++
		}
		return nil
	})
	if err != nil {
		return nil, classifyLedgerError(err)
	}
	return report, nil
}

// NormalizeUsername applies the same folding the ledger stores, so callers
// can validate the value that will actually be persisted.
func NormalizeUsername(username string) string {
	return norm.NFKC.String(strings.TrimSpace(username))
}

// ValidUsername accepts letters (any script), digits and _ . -
func ValidUsername(username string) bool {
	for _, r := range username {
		if r == '_' || r == '.' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func normalizeRegistration(r Registration) Registration {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = NormalizeUsername(r.Username)
	r.FullName = strings.Join(strings.Fields(norm.NFKC.String(r.FullName)), " ")
	r.Phone = strings.TrimSpace(r.Phone)
	r.Source = strings.ToLower(strings.TrimSpace(r.Source))
	if r.Source == "" {
		r.Source = "website"
	}
	return r
}

var registrationValidator = validator.New(validator.WithRequiredStructEnabled())

func init() {
	_ = registrationValidator.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidUsername(fl.Field().String())
	})
}

// registrationRules mirrors the column widths of early_access_users.
type registrationRules struct {
	Email    string `validate:"required,email,max=255"`
	Username string `validate:"required,min=3,max=50,username"`
	FullName string `validate:"required,max=255"`
	Phone    string `validate:"omitempty,max=32"`
	Source   string `validate:"max=32"`
}

// validateRegistration checks the normalized values, which are the ones
// written to the database.
func validateRegistration(r Registration) error {
	err := registrationValidator.Struct(registrationRules(r))
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %s", ErrInvalidRegistration, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
}

func classifyLedgerError(err error) error {
	switch {
	case errors.Is(err, ErrDuplicateIdentity),
		errors.Is(err, ErrSelfReferral),
		errors.Is(err, ErrInvalidRegistration),
		errors.Is(err, ErrUserNotFound):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrUserNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateIdentity
	default:
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
}
