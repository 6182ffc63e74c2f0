package scenario

import (
	"fmt"
	"math"
	"math/rand"
)

// UserPayload is the body for user creation requests.
type UserPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// NewUserPayload generates a randomized user registration payload.
//
// The first name and email carry a random 4-digit suffix, and the phone
// is a random 10-digit numeric string.
func NewUserPayload(r *rand.Rand, namePrefix, lastName, emailPrefix string) UserPayload {
	return UserPayload{
		FirstName: fmt.Sprintf("%s%d", namePrefix, 1000+r.Intn(9000)),
		LastName:  lastName,
		Email:     fmt.Sprintf("%s%d@example.com", emailPrefix, 1000+r.Intn(9000)),
		Phone:     fmt.Sprintf("%d", 1000000000+r.Int63n(9000000000)),
	}
}

// Cart references the cart an order was created from.
type Cart struct {
	CartID int `json:"cartId"`
}

// OrderPayload is the body for order creation requests.
type OrderPayload struct {
	OrderDesc string  `json:"orderDesc"`
	OrderFee  float64 `json:"orderFee"`
	Cart      Cart    `json:"cart"`
}

// NewOrderPayload generates an order payload with a fee sampled uniformly
// from [feeMin, feeMax] and rounded to 2 decimal places.
func NewOrderPayload(r *rand.Rand, desc string, feeMin, feeMax float64, cartID int) OrderPayload {
	fee := feeMin + r.Float64()*(feeMax-feeMin)
	return OrderPayload{
		OrderDesc: desc,
		OrderFee:  math.Round(fee*100) / 100,
		Cart:      Cart{CartID: cartID},
	}
}

// FavouritePayload is the body for favourite creation requests.
type FavouritePayload struct {
	UserID    int `json:"userId"`
	ProductID int `json:"productId"`
}

// OrderRef references an existing order.
type OrderRef struct {
	OrderID int `json:"orderId"`
}

// PaymentPayload is the body for payment creation requests.
type PaymentPayload struct {
	OrderDto OrderRef `json:"orderDto"`
}
