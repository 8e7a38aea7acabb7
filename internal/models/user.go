package models

import "time"

type UserRole string

const (
	RoleAdmin          UserRole = "admin"
	RoleSalesExecutive UserRole = "sales executive"
	RoleFinance        UserRole = "finance"
	RoleReco           UserRole = "reco"
	RoleApprover       UserRole = "approver"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleSalesExecutive, RoleFinance, RoleReco, RoleApprover:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive      AccountStatus = "active"
	AccountBlacklisted AccountStatus = "blacklisted"
)

type User struct {
	ID            uint          `gorm:"primaryKey"`
	Name          string        `gorm:"size:100;not null"`
	Email         string        `gorm:"size:100;uniqueIndex;not null"`
	MobileNo      string        `gorm:"size:20"`
	Username      string        `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash  string        `gorm:"size:255;not null"`
	Role          UserRole      `gorm:"size:20;not null"`
	AccountStatus AccountStatus `gorm:"size:20;not null;default:active"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
