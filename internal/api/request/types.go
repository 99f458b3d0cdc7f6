package request

// RegisterRequest is the request body for self-registration
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateUserRequest is the request body for an admin creating a user
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// UpdateUserRequest is the request body for an admin editing a user.
// Omitted fields are left unchanged.
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// BlockRequest is the request body for blocking or unblocking a user
type BlockRequest struct {
	IsBlocked *bool `json:"isBlocked"`
}
