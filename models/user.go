package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"gorm.io/gorm"
)

// User owns datasets. Accounts are issued by the auth service; this service only
// needs the row as an owner reference.
type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	FirstName    string    `gorm:"size:100" json:"firstName"`
	LastName     string    `gorm:"size:100" json:"lastName"`
	Role         string    `gorm:"size:20;not null;default:USER" json:"role"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type NewUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, errors.New("email is required")
	}
	if input.Password == "" {
		return nil, errors.New("password is required")
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = "USER"
	}

	user := User{
		Email:        email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         role,
		PasswordHash: string(hashed),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByEmail(ctx context.Context, email string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}
