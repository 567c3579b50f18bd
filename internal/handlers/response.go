package handlers

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/akylbek/payment-system/gateway-orchestrator/internal/errors"
	"github.com/akylbek/payment-system/gateway-orchestrator/internal/telemetry"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Error   *apperrors.AppError `json:"error,omitempty"`
	Errors  map[string]string   `json:"errors,omitempty"`
}

var registerOnce sync.Once

// useJSONFieldNames makes validation errors report json names such as
// "order_id" instead of Go field names.
func useJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func respondError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		telemetry.Logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err),
		)
	}
	c.JSON(status, envelope{Success: false, Message: appErr.Message, Error: appErr})
}

// respondBindError turns a request decoding failure into a 422 listing the
// offending fields.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		c.JSON(http.StatusUnprocessableEntity, envelope{
			Success: false,
			Message: "invalid request body",
			Error:   apperrors.ErrValidation.WithDetails(err.Error()),
		})
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	c.JSON(http.StatusUnprocessableEntity, envelope{
		Success: false,
		Message: "invalid request",
		Error:   apperrors.ErrValidation,
		Errors:  fields,
	})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	case "alpha":
		return "must contain letters only"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
