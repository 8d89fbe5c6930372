package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"bithrah-early-access/middleware"
	"bithrah-early-access/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Arabic first, then English.
var fieldMessages = map[string]string{
	"required": "هذا الحقل مطلوب / this field is required",
	"email":    "البريد الإلكتروني غير صالح / invalid email address",
	"min":      "القيمة أقصر من المسموح / value is too short",
	"max":      "القيمة أطول من المسموح / value is too long",
	"gt":       "يجب أن تكون القيمة أكبر من الصفر / value must be greater than zero",
	"alphanum": "يسمح بالحروف والأرقام فقط / letters and digits only",
	"username": "اسم المستخدم يقبل الحروف والأرقام و _ . - فقط / username may contain letters, digits, _ . - only",
}

func init() {
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return services.ValidUsername(fl.Field().String())
	})

	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// validateBody parses the JSON body into dst and runs the validate tags. On
// failure the 400 response has already been written and handled is true.
func validateBody(c *fiber.Ctx, dst any) (handled bool, err error) {
	if handled, err := parseBody(c, dst); handled {
		return true, err
	}
	return validateStruct(c, dst)
}

func parseBody(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "تعذر قراءة الطلب / invalid request body",
			"request_id": middleware.RequestID(c),
		})
	}
	return false, nil
}

func validateStruct(c *fiber.Ctx, dst any) (bool, error) {
	err := validate.Struct(dst)
	if err == nil {
		return false, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return true, respondError(c, err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("قيمة غير صالحة / failed %s validation", fe.Tag())
		}
		fields[fe.Field()] = msg
	}

	return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":      "بيانات غير صالحة / validation failed",
		"fields":     fields,
		"request_id": middleware.RequestID(c),
	})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	requestID := middleware.RequestID(c)

	status := fiber.StatusInternalServerError
	body := fiber.Map{"request_id": requestID}

	switch {
	case errors.Is(err, services.ErrDuplicateIdentity):
		status = fiber.StatusConflict
		body["error"] = "البريد الإلكتروني أو اسم المستخدم مسجل مسبقاً / email or username already registered"
	case errors.Is(err, services.ErrInvalidRegistration):
		status = fiber.StatusBadRequest
		body["error"] = "بيانات غير صالحة / validation failed"
		body["detail"] = err.Error()
	case errors.Is(err, services.ErrSelfReferral):
		status = fiber.StatusUnprocessableEntity
		body["error"] = "لا يمكنك استخدام رمز الإحالة الخاص بك / you cannot use your own referral code"
	case errors.Is(err, services.ErrUserNotFound):
		status = fiber.StatusNotFound
		body["error"] = "المستخدم غير موجود / user not found"
	case errors.Is(err, services.ErrIdeaNotFound):
		status = fiber.StatusNotFound
		body["error"] = "الفكرة غير موجودة / idea not found"
	case errors.Is(err, services.ErrEvaluationFailed):
		status = fiber.StatusBadGateway
		body["error"] = "تعذر تقييم الفكرة حالياً / idea evaluation is unavailable"
		body["retryable"] = true
	case errors.Is(err, services.ErrExportDisabled):
		status = fiber.StatusServiceUnavailable
		body["error"] = "التصدير غير مفعّل / waitlist export is not configured"
	case errors.Is(err, services.ErrStorageFailure):
		status = fiber.StatusServiceUnavailable
		body["error"] = "خطأ مؤقت في التخزين، حاول مرة أخرى / temporary storage failure, please retry"
		body["retryable"] = true
	default:
		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			status = ferr.Code
			body["error"] = ferr.Message
			break
		}
		body["error"] = "خطأ داخلي / internal server error"
	}

	if status >= fiber.StatusInternalServerError {
		zap.L().Error("Request failed", zap.Error(err), zap.String("request_id", requestID))
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler is the fiber app error handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return respondError(c, err)
}
