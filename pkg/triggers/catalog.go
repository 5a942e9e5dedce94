package triggers

// CatalogEntry describes one trigger kind for the workflow-builder UI and for
// test runs with representative data.
type CatalogEntry struct {
	Kind          Kind    `json:"kind"`
	Label         string  `json:"label"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	SamplePayload Payload `json:"samplePayload"`
}

const (
	CategoryOrders    = "orders"
	CategoryCustomers = "customers"
	CategoryInventory = "inventory"
	CategoryManual    = "manual"
)

var catalog = []CatalogEntry{
	{
		Kind:        KindOrderPlaced,
		Label:       "Order placed",
		Description: "A customer completed checkout and placed an order.",
		Category:    CategoryOrders,
		SamplePayload: OrderPlacedPayload{
			OrderID:       "ord_sample_1",
			CustomerID:    "cus_sample_1",
			CustomerEmail: "ada@example.com",
			CustomerName:  "Ada Lovelace",
			TotalAmount:   5000,
			Currency:      "USD",
			Items: []LineItem{
				{ProductID: "prd_sample_1", Name: "Espresso Blend", Quantity: 2, UnitPrice: 2500},
			},
		},
	},
	{
		Kind:        KindCustomerFirstPurchase,
		Label:       "First purchase",
		Description: "A customer completed their first ever order.",
		Category:    CategoryCustomers,
		SamplePayload: CustomerFirstPurchasePayload{
			CustomerID:    "cus_sample_1",
			CustomerEmail: "ada@example.com",
			CustomerName:  "Ada Lovelace",
			OrderID:       "ord_sample_1",
			TotalAmount:   5000,
			Currency:      "USD",
		},
	},
	{
		Kind:        KindProductRestocked,
		Label:       "Product restocked",
		Description: "Inventory for a product variant went from zero back to available.",
		Category:    CategoryInventory,
		SamplePayload: ProductRestockedPayload{
			ProductID: "prd_sample_1",
			VariantID: "var_sample_1",
			Name:      "Espresso Blend",
			Quantity:  40,
		},
	},
	{
		Kind:        KindProductOutOfStock,
		Label:       "Product out of stock",
		Description: "Inventory for a product variant reached zero.",
		Category:    CategoryInventory,
		SamplePayload: ProductOutOfStockPayload{
			ProductID: "prd_sample_1",
			VariantID: "var_sample_1",
			Name:      "Espresso Blend",
		},
	},
	{
		Kind:        KindProductLowStock,
		Label:       "Low stock alert",
		Description: "Inventory for a product variant dropped below its threshold.",
		Category:    CategoryInventory,
		SamplePayload: ProductLowStockPayload{
			ProductID: "prd_sample_1",
			VariantID: "var_sample_1",
			Name:      "Espresso Blend",
			Quantity:  3,
			Threshold: 5,
		},
	},
	{
		Kind:        KindManual,
		Label:       "Manual trigger",
		Description: "An admin ran the workflow by hand.",
		Category:    CategoryManual,
		SamplePayload: ManualPayload{
			InitiatedBy: "admin@example.com",
			Note:        "test run",
		},
	},
}

// Catalog returns the static trigger catalog. The returned slice is a copy;
// callers may reorder it freely.
func Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, len(catalog))
	copy(entries, catalog)

	return entries
}

// CatalogEntryFor returns the catalog entry for kind.
func CatalogEntryFor(kind Kind) (CatalogEntry, bool) {
	for _, entry := range catalog {
		if entry.Kind == kind {
			return entry, true
		}
	}

	return CatalogEntry{}, false
}

// SamplePayload returns the representative payload for kind, used by test
// executions.
func SamplePayload(kind Kind) (Payload, bool) {
	entry, ok := CatalogEntryFor(kind)
	if !ok {
		return nil, false
	}

	return entry.SamplePayload, true
}
