package auth_dto

import "time"

type DevTokenRequest struct {
	UserID   string `json:"user_id" validate:"required,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Nickname string `json:"nickname" validate:"omitempty,nickname"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
