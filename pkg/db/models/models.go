package models

// All returns every model for schema migration, ordered so foreign keys
// resolve.
func All() []any {
	return []any{
		&User{},
		&StockSubscription{},
		&Product{},
		&ProductReview{},
		&CartItem{},
		&WishlistItem{},
		&Order{},
		&OrderItem{},
		&OrderNote{},
		&Notification{},
		&WalletEntry{},
		&Ticket{},
		&TicketMessage{},
	}
}
