package domain

import "time"

const RoleUser = "user"

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

type User struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	Role         string
	Gender       *string
	PasswordHash string
	RefreshToken *string
	IsOnline     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ProfileUpdate struct {
	Email     string
	FirstName string
	LastName  string
	Username  string
	Gender    *string
}
