package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
	"chain-price-alerts/internal/storage"
)

// ConfirmationMessage is returned to the caller after a successful registration.
const ConfirmationMessage = "Alert has been successfully set!"

// DefaultHistoryHours is the hourly-price window used when none is given.
const DefaultHistoryHours = 24

// MaxHistoryHours bounds the window so the lookback duration cannot overflow.
const MaxHistoryHours = 24 * 365 * 100

// AlertRequest is the raw registration input.
type AlertRequest struct {
	Chain string `json:"chain" validate:"required,supported_chain"`
	Price string `json:"price" validate:"required,positive_decimal"`
	Email string `json:"email" validate:"required,email"`
}

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Confirmation is the result of a successful registration.
type Confirmation struct {
	Alert   storage.Alert
	Message string
}

// Registry implements alert registration and price history lookups.
type Registry struct {
	alerts   storage.AlertStore
	prices   storage.PriceStore
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRegistry constructs a Registry.
func NewRegistry(alerts storage.AlertStore, prices storage.PriceStore, logger zerolog.Logger) *Registry {
	return &Registry{
		alerts:   alerts,
		prices:   prices,
		validate: newValidator(),
		logger:   logger.With().Str("component", "registry").Logger(),
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("supported_chain", func(fl validator.FieldLevel) bool {
		_, err := chain.Parse(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && d.IsPositive()
	})
	return v
}

// RegisterAlert validates req and persists a new alert.
func (r *Registry) RegisterAlert(ctx context.Context, req AlertRequest) (Confirmation, error) {
	if err := r.validateRequest(req); err != nil {
		return Confirmation{}, err
	}

	c, _ := chain.Parse(req.Chain)
	target, _ := decimal.NewFromString(strings.TrimSpace(req.Price))
	alert := storage.Alert{
		Chain:       c,
		TargetPrice: target,
		Email:       strings.TrimSpace(req.Email),
		CreatedAt:   r.now().UTC(),
	}

	if err := r.alerts.Create(ctx, &alert); err != nil {
		return Confirmation{}, fmt.Errorf("create alert: %w", err)
	}

	r.logger.Info().
		Int64("alert_id", alert.ID).
		Str("chain", alert.Chain.String()).
		Str("target_price", alert.TargetPrice.String()).
		Msg("alert registered")
	return Confirmation{Alert: alert, Message: ConfirmationMessage}, nil
}

func (r *Registry) validateRequest(req AlertRequest) error {
	req.Chain = strings.TrimSpace(req.Chain)
	req.Email = strings.TrimSpace(req.Email)

	err := r.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	first := fieldErrs[0]
	return &ValidationError{Field: first.Field(), Reason: describeTag(first.Tag())}
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "supported_chain":
		names := make([]string, 0, len(chain.Supported()))
		for _, c := range chain.Supported() {
			names = append(names, c.String())
		}
		return "must be one of " + strings.Join(names, ", ")
	case "positive_decimal":
		return "must be a positive number"
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + tag + " validation"
	}
}

// HourlyPrices returns samples for chainName recorded in the last hours hours,
// newest first. Zero hours selects DefaultHistoryHours.
func (r *Registry) HourlyPrices(ctx context.Context, chainName string, hours int) ([]storage.PriceSample, error) {
	c, err := chain.Parse(chainName)
	if err != nil {
		return nil, &ValidationError{Field: "chain", Reason: describeTag("supported_chain")}
	}
	if hours < 0 {
		return nil, &ValidationError{Field: "hours", Reason: "must not be negative"}
	}
	if hours > MaxHistoryHours {
		return nil, &ValidationError{Field: "hours", Reason: fmt.Sprintf("must not exceed %d", MaxHistoryHours)}
	}
	if hours == 0 {
		hours = DefaultHistoryHours
	}

	since := r.now().Add(-time.Duration(hours) * time.Hour)
	samples, err := r.prices.Query(ctx, c, since)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	return samples, nil
}
