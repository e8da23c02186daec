package types

import (
	"errors"
	"math"
)

// Product describes an item offered for sale. It is a CartItem without the
// quantity and is the argument of Store.AddToCart.
type Product struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

// CartItem is a product held in the cart together with its quantity.
// Quantity is at least 1 while the item remains in the cart.
type CartItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Cart entity errors.
var (
	ErrInvalidItem      = errors.New("invalid cart item")
	ErrInvalidID        = errors.New("invalid item ID")
	ErrInvalidPrice     = errors.New("price must be a non-negative number")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrNotInitialized   = errors.New("cart store is not initialized in this scope")
	ErrStoreClosed      = errors.New("cart store is closed")
	ErrDecode           = errors.New("decode cart blob")
	ErrPersistenceWrite = errors.New("persist cart blob")
)

// Validate checks that the product can be placed in a cart.
// Returns ErrInvalidID or ErrInvalidPrice, both wrapped by ErrInvalidItem
// at the store boundary.
func (p Product) Validate() error {
	if p.ID == "" {
		return ErrInvalidID
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Item returns the cart line for p with the given quantity.
func (p Product) Item(quantity int) CartItem {
	return CartItem{
		ID:       p.ID,
		Title:    p.Title,
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Quantity: quantity,
	}
}

// Product returns the product part of the cart line.
func (c CartItem) Product() Product {
	return Product{
		ID:       c.ID,
		Title:    c.Title,
		ImageURL: c.ImageURL,
		Price:    c.Price,
	}
}

// Validate checks the product fields and that Quantity is at least 1.
func (c CartItem) Validate() error {
	if err := c.Product().Validate(); err != nil {
		return err
	}
	if c.Quantity < 1 {
		return ErrInvalidQuantity
	}
	return nil
}
