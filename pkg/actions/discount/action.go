// Package discount provides the apply_discount action, which mints a
// single-use discount code for a customer. Issuance goes through the Issuer
// interface so deployments can back it with their commerce platform.
package discount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storeflow/storeflow/pkg/template"
	"github.com/storeflow/storeflow/pkg/triggers"
)

const (
	defaultValidDays = 30
	defaultPrefix    = "SAVE"
)

var (
	ErrPercentRequired   = errors.New("discount percent is required")
	ErrPercentOutOfRange = errors.New("discount percent must be between 1 and 100")
)

// Code is an issued discount code.
type Code struct {
	Code       string
	CustomerID string
	Percent    float64
	ExpiresAt  time.Time
}

// Issuer records issued codes in the commerce platform.
type Issuer interface {
	Issue(ctx context.Context, code Code) error
}

// LogIssuer writes issued codes to the log instead of registering them.
type LogIssuer struct {
	Logger *slog.Logger
}

func (i *LogIssuer) Issue(ctx context.Context, code Code) error {
	i.Logger.InfoContext(ctx, "Issuing discount code",
		"code", code.Code,
		"customer_id", code.CustomerID,
		"percent", code.Percent,
		"expires_at", code.ExpiresAt,
	)

	return nil
}

// Action issues a discount code for the customer referenced by the event.
type Action struct {
	CustomerID string
	Percent    float64
	ValidDays  int
	Prefix     string

	issuer Issuer
}

func NewAction(params map[string]any, issuer Issuer) (*Action, error) {
	percent, ok := params["percent"].(float64)
	if !ok {
		return nil, ErrPercentRequired
	}

	if percent < 1 || percent > 100 {
		return nil, ErrPercentOutOfRange
	}

	customerID, _ := params["customer_id"].(string)
	if customerID == "" {
		customerID = "{{ .event.customerId }}"
	}

	validDays := defaultValidDays
	if days, ok := params["valid_days"].(float64); ok && days > 0 {
		validDays = int(days)
	}

	prefix, _ := params["prefix"].(string)
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Action{
		CustomerID: customerID,
		Percent:    percent,
		ValidDays:  validDays,
		Prefix:     prefix,
		issuer:     issuer,
	}, nil
}

func (a *Action) Execute(ctx context.Context, event triggers.Event, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "discount_action")

	customerID, err := template.RenderString(a.CustomerID, event)
	if err != nil {
		return nil, fmt.Errorf("invalid customer_id template: %w", err)
	}

	if customerID == "" {
		return nil, errors.New("event carries no customer to issue a discount for")
	}

	code := Code{
		Code:       generateCode(a.Prefix),
		CustomerID: customerID,
		Percent:    a.Percent,
		ExpiresAt:  time.Now().UTC().AddDate(0, 0, a.ValidDays),
	}

	logger.InfoContext(ctx, "Executing discount action", "customer_id", customerID, "percent", a.Percent)

	err = a.issuer.Issue(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to issue discount code: %w", err)
	}

	return map[string]any{
		"code":        code.Code,
		"customer_id": code.CustomerID,
		"percent":     code.Percent,
		"expires_at":  code.ExpiresAt.Format(time.RFC3339),
	}, nil
}

func generateCode(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

	return prefix + "-" + suffix[:8]
}
