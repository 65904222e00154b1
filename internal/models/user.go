package models

import "time"

// UserModel is a signed-in person. Identity comes from the hosting provider login.
type UserModel struct {
	Base
	Name     string    `json:"name"`
	Email    string    `json:"email"      gorm:"index"`
	Image    string    `json:"image"      gorm:"type:text"`
	Login    string    `json:"login"      gorm:"index"`
	Accounts []Account `json:"-"          gorm:"foreignKey:UserID"`
}

func (UserModel) TableName() string { return "users" }

// Account holds the provider credential linked to a user.
type Account struct {
	Base
	UserID            string     `json:"-"                   gorm:"type:char(36);uniqueIndex:idx_account_user_provider;not null"`
	Provider          string     `json:"provider"            gorm:"size:32;uniqueIndex:idx_account_user_provider;index:idx_account_provider_uid;not null"`
	ProviderAccountID string     `json:"provider_account_id" gorm:"size:64;index:idx_account_provider_uid"`
	AccessToken       string     `json:"-"                   gorm:"type:text"`
	Scope             string     `json:"scope"`
	LastUsed          *time.Time `json:"last_used"`
}

func (Account) TableName() string { return "accounts" }

const ProviderGitHub = "github"
