package triggers

import "errors"

var (
	ErrUnknownKind    = errors.New("unknown trigger kind")
	ErrMissingPayload = errors.New("missing trigger payload")
)

// LineItem is a single purchased product inside an order payload.
type LineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// OrderPlacedPayload carries the order a customer just placed. Amounts are in
// minor currency units.
type OrderPlacedPayload struct {
	OrderID       string     `json:"orderId"`
	CustomerID    string     `json:"customerId"`
	CustomerEmail string     `json:"customerEmail"`
	CustomerName  string     `json:"customerName"`
	TotalAmount   int64      `json:"totalAmount"`
	Currency      string     `json:"currency"`
	Items         []LineItem `json:"items"`
}

func (OrderPlacedPayload) TriggerKind() Kind { return KindOrderPlaced }

// CustomerFirstPurchasePayload fires once per customer, on their first
// completed order.
type CustomerFirstPurchasePayload struct {
	CustomerID    string `json:"customerId"`
	CustomerEmail string `json:"customerEmail"`
	CustomerName  string `json:"customerName"`
	OrderID       string `json:"orderId"`
	TotalAmount   int64  `json:"totalAmount"`
	Currency      string `json:"currency"`
}

func (CustomerFirstPurchasePayload) TriggerKind() Kind { return KindCustomerFirstPurchase }

// ProductRestockedPayload fires when inventory for a variant goes from zero to
// a positive quantity.
type ProductRestockedPayload struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

func (ProductRestockedPayload) TriggerKind() Kind { return KindProductRestocked }

// ProductOutOfStockPayload fires when inventory for a variant reaches zero.
type ProductOutOfStockPayload struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name"`
}

func (ProductOutOfStockPayload) TriggerKind() Kind { return KindProductOutOfStock }

// ProductLowStockPayload fires when inventory drops below the configured
// threshold but is not yet zero.
type ProductLowStockPayload struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
}

func (ProductLowStockPayload) TriggerKind() Kind { return KindProductLowStock }

// ManualPayload is an admin-initiated trigger, used to test workflows from the
// builder UI or to run one on demand. Data is free-form.
type ManualPayload struct {
	InitiatedBy string         `json:"initiatedBy,omitempty"`
	Note        string         `json:"note,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

func (ManualPayload) TriggerKind() Kind { return KindManual }
