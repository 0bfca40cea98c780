package models

import (
	"gorm.io/gorm"
)

// Role names recognised by the HTTP surface.
const (
	RoleAdmin     = "admin"
	RolePublisher = "publisher"
	RoleMember    = "member"
)

// User represents a directory entry that can log in and be targeted by notifications.
type User struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Username     string `json:"username" gorm:"unique;not null"`
	PasswordHash string `json:"-" gorm:"column:password_hash;not null"`
	Role         string `json:"role" gorm:"not null;default:'member'"`
	gorm.Model
}

// TableName specifies the table name for User Model
func (User) TableName() string {
	return "users"
}
