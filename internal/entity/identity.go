package entity

// Identity is the caller as asserted by a verified token.
type Identity struct {
	UserID   string
	Email    string
	Nickname string
}
