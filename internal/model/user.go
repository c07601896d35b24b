package model

import "time"

// DefaultRole is assigned to users registered without an explicit role.
const DefaultRole = "technician"

// User is a person who can perform maintenance.
type User struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;size:255;not null"`
	FirstName    string    `gorm:"size:100;not null"`
	LastName     string    `gorm:"size:100;not null"`
	Role         string    `gorm:"size:50;not null;default:technician"`
	PasswordHash *string   `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"not null"`
}

// DisplayName is the user's full name, falling back to the username.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}
