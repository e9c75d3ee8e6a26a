package domain

import "time"

const (
	CategoryElectronics = "electronics"
	CategoryClothing    = "clothing"
	CategoryFood        = "food"
	CategoryHome        = "home"
	CategoryOther       = "other"
)

func IsValidCategory(category string) bool {
	switch category {
	case CategoryElectronics, CategoryClothing, CategoryFood, CategoryHome, CategoryOther:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentCard        PaymentMethod = "card"
	PaymentMobileMoney PaymentMethod = "mobile_money"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobileMoney:
		return true
	default:
		return false
	}
}

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	CostCents  int64  `json:"cost_cents"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	Category   string `json:"category"`
	ImageURL   string `json:"image_url,omitempty"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	CostCents  int64  `json:"cost_cents"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	Category   string `json:"category"`
	ImageURL   string `json:"image_url,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	SKU        *string `json:"sku,omitempty"`
	CostCents  *int64  `json:"cost_cents,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	Category   *string `json:"category,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// Service is billed per sale; it carries no price of its own.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ServiceCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ServiceUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type LineKind string

const (
	LineKindProduct LineKind = "product"
	LineKindService LineKind = "service"
)

// LineItem is a tagged union: Kind selects which of the product or service
// fields are meaningful.
type LineItem struct {
	Kind               LineKind `json:"kind"`
	Product            *Product `json:"product,omitempty"`
	Quantity           int      `json:"quantity,omitempty"`
	CustomPriceCents   *int64   `json:"custom_price_cents,omitempty"`
	Service            *Service `json:"service,omitempty"`
	AmountChargedCents int64    `json:"amount_charged_cents,omitempty"`
}

func NewProductLine(product Product, qty int) LineItem {
	return LineItem{Kind: LineKindProduct, Product: &product, Quantity: qty}
}

func NewServiceLine(service Service, amountCents int64) LineItem {
	return LineItem{Kind: LineKindService, Service: &service, AmountChargedCents: amountCents}
}

func (l LineItem) ItemID() string {
	switch l.Kind {
	case LineKindProduct:
		if l.Product != nil {
			return l.Product.ID
		}
	case LineKindService:
		if l.Service != nil {
			return l.Service.ID
		}
	}
	return ""
}

func (l LineItem) ItemName() string {
	switch l.Kind {
	case LineKindProduct:
		if l.Product != nil {
			return l.Product.Name
		}
	case LineKindService:
		if l.Service != nil {
			return l.Service.Name
		}
	}
	return ""
}

// EffectiveUnitPriceCents is the price a single unit is charged at: the
// custom override when present, otherwise the catalog price. Service lines
// return the amount charged.
func (l LineItem) EffectiveUnitPriceCents() int64 {
	if l.Kind == LineKindService {
		return l.AmountChargedCents
	}
	if l.CustomPriceCents != nil && *l.CustomPriceCents > 0 {
		return *l.CustomPriceCents
	}
	if l.Product == nil {
		return 0
	}
	return l.Product.PriceCents
}

func (l LineItem) Clone() LineItem {
	dup := l
	if l.Product != nil {
		product := *l.Product
		dup.Product = &product
	}
	if l.Service != nil {
		service := *l.Service
		dup.Service = &service
	}
	if l.CustomPriceCents != nil {
		price := *l.CustomPriceCents
		dup.CustomPriceCents = &price
	}
	return dup
}

func CloneLines(lines []LineItem) []LineItem {
	dup := make([]LineItem, len(lines))
	for i, line := range lines {
		dup[i] = line.Clone()
	}
	return dup
}

type TransactionType string

const (
	TxTypeProduct TransactionType = "product"
	TxTypeService TransactionType = "service"
)

type Transaction struct {
	ID              string          `json:"id"`
	Type            TransactionType `json:"type"`
	OwnerID         string          `json:"owner_id"`
	Items           []LineItem      `json:"items"`
	SubtotalCents   int64           `json:"subtotal_cents"`
	TaxRatePercent  float64         `json:"tax_rate_percent"`
	TaxCents        int64           `json:"tax_cents"`
	TotalCents      int64           `json:"total_cents"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	AmountPaidCents int64           `json:"amount_paid_cents"`
	ChangeCents     int64           `json:"change_cents"`
	Date            time.Time       `json:"date"`
}

func (t Transaction) Clone() Transaction {
	dup := t
	dup.Items = CloneLines(t.Items)
	return dup
}

// SameSale reports whether other records the same sale as t. Remote stores
// use it to tell a replay apart from a different sale reusing an id. Dates
// are compared at microsecond precision, which is what Postgres keeps.
func (t Transaction) SameSale(other Transaction) bool {
	if t.ID != other.ID || t.Type != other.Type || t.PaymentMethod != other.PaymentMethod {
		return false
	}
	if t.SubtotalCents != other.SubtotalCents || t.TaxCents != other.TaxCents || t.TotalCents != other.TotalCents {
		return false
	}
	if t.AmountPaidCents != other.AmountPaidCents || t.ChangeCents != other.ChangeCents {
		return false
	}
	if !t.Date.Truncate(time.Microsecond).Equal(other.Date.Truncate(time.Microsecond)) {
		return false
	}
	if len(t.Items) != len(other.Items) {
		return false
	}
	for i, line := range t.Items {
		peer := other.Items[i]
		if line.Kind != peer.Kind || line.ItemID() != peer.ItemID() || line.Quantity != peer.Quantity {
			return false
		}
		if line.EffectiveUnitPriceCents() != peer.EffectiveUnitPriceCents() {
			return false
		}
	}
	return true
}

func CloneTransactions(txs []Transaction) []Transaction {
	dup := make([]Transaction, len(txs))
	for i, tx := range txs {
		dup[i] = tx.Clone()
	}
	return dup
}

type SyncKind string

const (
	SyncKindTransaction        SyncKind = "transaction"
	SyncKindServiceTransaction SyncKind = "service_transaction"
)

func SyncKindFor(txType TransactionType) SyncKind {
	if txType == TxTypeService {
		return SyncKindServiceTransaction
	}
	return SyncKindTransaction
}

type SyncQueueEntry struct {
	ID         string      `json:"id"`
	Kind       SyncKind    `json:"kind"`
	Payload    Transaction `json:"payload"`
	OwnerID    string      `json:"owner_id"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type Quote struct {
	SubtotalCents  int64   `json:"subtotal_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	TaxCents       int64   `json:"tax_cents"`
	TotalCents     int64   `json:"total_cents"`
}

type CartView struct {
	Lines []LineItem `json:"lines"`
	Quote Quote      `json:"quote"`
}

type CartAddProductRequest struct {
	ProductID string `json:"product_id"`
}

type CartAddServiceRequest struct {
	ServiceID   string `json:"service_id"`
	AmountCents int64  `json:"amount_cents"`
}

// CartLineUpdateRequest patches a cart line. A present custom_price_cents of
// zero or less clears the override.
type CartLineUpdateRequest struct {
	Quantity         *int   `json:"quantity,omitempty"`
	CustomPriceCents *int64 `json:"custom_price_cents,omitempty"`
	ClearCustomPrice bool   `json:"clear_custom_price,omitempty"`
	AmountCents      *int64 `json:"amount_cents,omitempty"`
}

type CheckoutRequest struct {
	PaymentMethod   PaymentMethod `json:"payment_method"`
	AmountPaidCents int64         `json:"amount_paid_cents"`
}

type SyncStatus struct {
	Online  bool             `json:"online"`
	Pending int              `json:"pending"`
	Entries []SyncQueueEntry `json:"entries,omitempty"`
}

type FlushResult struct {
	Processed int    `json:"processed"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

type ReportKind string

const (
	ReportDaily  ReportKind = "daily"
	ReportWeekly ReportKind = "weekly"
	ReportYearly ReportKind = "yearly"
	ReportCustom ReportKind = "custom"
)

type ReportPaymentLine struct {
	PaymentMethod PaymentMethod `json:"payment_method" csv:"payment_method"`
	Transactions  int64         `json:"transactions" csv:"transactions"`
	TotalCents    int64         `json:"total_cents" csv:"total_cents"`
}

// ReportProductLine carries two revenue figures: RevenueCents is catalog
// price times units, ChargedRevenueCents is what the till actually charged.
type ReportProductLine struct {
	ProductID           string `json:"product_id"`
	Name                string `json:"name"`
	Units               int64  `json:"units"`
	RevenueCents        int64  `json:"revenue_cents"`
	ChargedRevenueCents int64  `json:"charged_revenue_cents"`
}

type ReportServiceLine struct {
	ServiceID    string `json:"service_id"`
	Name         string `json:"name"`
	Count        int64  `json:"count"`
	RevenueCents int64  `json:"revenue_cents"`
}

type ReportSummary struct {
	Kind              ReportKind          `json:"kind"`
	RangeStart        time.Time           `json:"range_start"`
	RangeEnd          time.Time           `json:"range_end"`
	TotalSalesCents   int64               `json:"total_sales_cents"`
	ProductSalesCents int64               `json:"product_sales_cents"`
	ServiceSalesCents int64               `json:"service_sales_cents"`
	TotalTaxCents     int64               `json:"total_tax_cents"`
	Transactions      int64               `json:"transactions"`
	AverageSaleCents  int64               `json:"average_sale_cents"`
	MedianSaleCents   int64               `json:"median_sale_cents"`
	LargestSaleCents  int64               `json:"largest_sale_cents"`
	ByPayment         []ReportPaymentLine `json:"by_payment"`
	ByProduct         []ReportProductLine `json:"by_product"`
	ByService         []ReportServiceLine `json:"by_service"`
	Entries           []Transaction       `json:"entries"`
}
