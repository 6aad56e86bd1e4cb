package domain

import "time"

// Condition is the seller-declared state of a listed item.
type Condition string

const (
	ConditionNew      Condition = "New"
	ConditionLikeNew  Condition = "Like New"
	ConditionGood     Condition = "Good"
	ConditionFair     Condition = "Fair"
	ConditionForParts Condition = "For Parts"
)

// ProductStatus tracks where a listing is in its sale lifecycle.
type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductRequested ProductStatus = "requested"
	ProductSold      ProductStatus = "sold"
)

// Valid reports whether s is one of the known product statuses.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductAvailable, ProductRequested, ProductSold:
		return true
	}
	return false
}

// Product is a listing in the campus catalog.
type Product struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Price       float64       `json:"price"`
	Description string        `json:"description"`
	Images      []string      `json:"images"`
	Condition   Condition     `json:"condition"`
	Category    string        `json:"category"`
	Tags        []string      `json:"tags"`
	SellerID    string        `json:"sellerId"`
	PostedAt    time.Time     `json:"postedAt"`
	Status      ProductStatus `json:"status"`
}

// ProductInput holds the seller-provided fields of a new listing.
type ProductInput struct {
	Title       string    `json:"title"       validate:"required,max=120"`
	Price       float64   `json:"price"       validate:"gte=0"`
	Description string    `json:"description" validate:"max=4000"`
	Images      []string  `json:"images"`
	Condition   Condition `json:"condition"   validate:"required,oneof=New 'Like New' Good Fair 'For Parts'"`
	Category    string    `json:"category"    validate:"required"`
	Tags        []string  `json:"tags"`
	SellerID    string    `json:"sellerId"    validate:"required"`
}
