package dto

// Length limits mirror domain.NameMinLen, NameMaxLen and PasswordMinLen.

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=4,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is not tag validated: every bad credential, missing ones
// included, must surface as the same invalid_credentials error.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is checked by the service after the token, so a bad
// token is reported before a bad password.
type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,min=4,max=30"`
	Email string `json:"email" validate:"omitempty,email"`
}

type UpdatePasswordRequest struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type AdminUpdateUserRequest struct {
	Name  string `json:"name" validate:"omitempty,min=4,max=30"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role" validate:"omitempty,oneof=user admin"`
}

type AvatarUploadRequest struct {
	ContentType string `json:"contentType" validate:"required,oneof=image/jpeg image/png image/webp"`
}
