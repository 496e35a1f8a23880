package models

import (
	"context"
	"time"

	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/utils"
)

// User is a platform login. Which organizations a user can act in is decided
// by OrganizationUser memberships, never by the user row itself.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required,min=8"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewApiError(ErrCodeValidation, "invalid user input")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, AsApiError(err)
	}

	user := User{
		Username: input.Username,
		Name:     input.Name,
		Password: string(hashed),
		IsActive: utils.NewTrue(),
	}
	if input.Email != "" {
		user.Email = &input.Email
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, AsApiError(err)
	}
	return &user, nil
}

// AuthenticateUser verifies credentials and returns the user plus a signed JWT.
func AuthenticateUser(ctx context.Context, username string, password string) (*User, string, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, "", NewApiError(ErrCodeAuthorization, "invalid credentials")
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, "", NewApiError(ErrCodeAuthorization, "user is deactivated")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, "", NewApiError(ErrCodeAuthorization, "invalid credentials")
	}
	token, err := utils.JwtGenerate(user.ID, user.Username)
	if err != nil {
		return nil, "", AsApiError(err)
	}
	return &user, token, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	user, err := utils.FetchSingleModel[User](ctx, id)
	if err != nil {
		return nil, NewApiError(ErrCodeNotFound, "user not found")
	}
	return user, nil
}
