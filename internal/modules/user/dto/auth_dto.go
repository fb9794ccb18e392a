package dto

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthUser struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
	Coins          int64   `json:"coins"`
	Coupons        int64   `json:"coupons"`
	ActivityPoints int64   `json:"activity_points"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  AuthUser `json:"user"`
}
