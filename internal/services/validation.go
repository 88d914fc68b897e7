package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wondr/rembg/internal/apperrors"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable error code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validator that reports fields by their JSON name
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// StatusFor maps an error to the HTTP status shown to the caller
func StatusFor(err error) int {
	code := apperrors.CodeOf(err)
	switch code {
	case apperrors.InsufficientCredits:
		return http.StatusForbidden
	case apperrors.CreditLookupFailed:
		if apperrors.HasCode(err, apperrors.AccountNotFound) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	case apperrors.BadBase64, apperrors.UnsupportedFormat, apperrors.InvalidRequest:
		return http.StatusBadRequest
	case apperrors.ImageTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.EngineUnavailable:
		return http.StatusServiceUnavailable
	}

	if apperrors.KindFor(code) == apperrors.KindAuth {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// MessageFor returns the caller-visible message for err
func MessageFor(err error) string {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return "Internal server error"
	}
	if apperrors.HasCode(err, apperrors.AccountNotFound) {
		return "User not found"
	}
	return appErr.Message
}

// SendAppError writes err using its code, status and message
func SendAppError(w http.ResponseWriter, err error) {
	writeError(w, StatusFor(err), ErrorResponse{
		Error: MessageFor(err),
		Code:  string(apperrors.CodeOf(err)),
	})
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Error: message}
	if statusCode == http.StatusBadRequest {
		errorResp.Code = string(apperrors.InvalidRequest)
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string, len(fieldErrs))
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	writeError(w, statusCode, errorResp)
}

func writeError(w http.ResponseWriter, statusCode int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
