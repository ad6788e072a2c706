package models

import "encoding/json"

// User is a gateway-managed user account.
type User struct {
	UID    uint   `gorm:"column:uid;primaryKey;autoIncrement" json:"uid"`
	Name   string `gorm:"type:varchar(60);uniqueIndex;not null" json:"name"`
	Email  string `gorm:"type:varchar(254);not null;default:''" json:"email"`
	Pass   string `gorm:"type:varchar(128);not null" json:"-"`
	Active bool   `gorm:"not null;default:true" json:"active"`

	// Roles is a JSON-encoded list of role names.
	Roles []byte `gorm:"type:text" json:"-"`
}

// TableName sets the table name for User model
func (User) TableName() string {
	return "users"
}

// RoleList decodes the stored role names. A row with no roles yields an
// empty, non-nil slice.
func (u *User) RoleList() []string {
	roles := []string{}
	if len(u.Roles) > 0 {
		_ = json.Unmarshal(u.Roles, &roles)
	}
	return roles
}

// SetRoles stores the given role names JSON-encoded.
func (u *User) SetRoles(roles []string) error {
	encoded, err := json.Marshal(roles)
	if err != nil {
		return err
	}
	u.Roles = encoded
	return nil
}
