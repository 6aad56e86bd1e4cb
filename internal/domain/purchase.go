package domain

import "time"

// RequestStatus is the state of a purchase request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// Valid reports whether s is one of the known request statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestDeclined:
		return true
	}
	return false
}

// PurchaseRequest is a buyer's request to purchase a listed product.
type PurchaseRequest struct {
	ID        string        `json:"id"`
	ProductID string        `json:"productId"`
	BuyerID   string        `json:"buyerId"`
	SellerID  string        `json:"sellerId"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
