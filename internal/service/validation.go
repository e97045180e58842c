package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Violation codes carried by ValidationError.
const (
	CodeInvalidArgument           = "INVALID_ARGUMENT"
	CodeRequired                  = "REQUIRED"
	CodeCouponNoMoreAvailable     = "COUPON_NO_MORE_AVAILABLE"
	CodeInsufficientQuantity      = "INSUFFICIENT_QUANTITY"
	CodeMinimumPurchaseNotReached = "MINIMUM_PURCHASE_NOT_REACHED"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrCouponNoMoreAvailable is matched when a coupon is inactive, expired or out of slots.
	ErrCouponNoMoreAvailable = errors.New("coupon no more available")
	// ErrInvalidArgument is matched when an argument is out of range or malformed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientQuantity is matched when a decrease would drive quantity negative.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrMinimumPurchaseNotReached is matched when a purchase is below the coupon minimum.
	ErrMinimumPurchaseNotReached = errors.New("minimum purchase not reached")
)

var codeSentinels = map[string]error{
	CodeInvalidArgument:           ErrInvalidArgument,
	CodeRequired:                  ErrInvalidArgument,
	CodeCouponNoMoreAvailable:     ErrCouponNoMoreAvailable,
	CodeInsufficientQuantity:      ErrInsufficientQuantity,
	CodeMinimumPurchaseNotReached: ErrMinimumPurchaseNotReached,
}

// Violation is one broken business or input rule.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError is a structured rejection holding one or more violations.
// It is returned, not raised, and never means the store was touched.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field != "" {
			msgs = append(msgs, v.Field+": "+v.Message)
			continue
		}
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(msgs, "; "))
}

// Is matches ErrValidation and the sentinel of every contained code.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	for _, v := range e.Violations {
		if codeSentinels[v.Code] == target {
			return true
		}
	}
	return false
}

// Has reports whether a violation with code is present.
func (e *ValidationError) Has(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// violations accumulates rule breaks; err returns nil when none were added.
type violations []Violation

func (vs *violations) add(field, code, message string) {
	*vs = append(*vs, Violation{Field: field, Code: code, Message: message})
}

func (vs violations) err() error {
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Violations: vs}
}

// fromValidator converts go-playground field errors into violations.
// prefix is prepended to every field path, e.g. "items".
func fromValidator(err error, prefix string) (violations, error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("validate request: %w", err)
	}

	out := make(violations, 0, len(ve))
	for _, fe := range ve {
		field := jsonPath(fe.Namespace())
		if prefix != "" {
			field = prefix + "." + field
		}
		code := CodeInvalidArgument
		if strings.HasPrefix(fe.Tag(), "required") {
			code = CodeRequired
		}
		out.add(field, code, describe(fe))
	}
	return out, nil
}

// jsonPath drops the root struct name from a namespace such as
// "CreateCouponRequest.min_purchase". Field names are already JSON names.
func jsonPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "futuretime":
		return "must be in the future"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "max":
		return "exceeds maximum of " + fe.Param()
	case "min":
		return "must have at least " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	default:
		return "is invalid"
	}
}
