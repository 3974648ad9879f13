package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleSuperAdmin     Role = "SUPER ADMIN"
	RoleAdmin          Role = "ADMIN"
	RolePlantHead      Role = "KEPALA PLANT"
	RoleBatchOperator  Role = "OPRATOR BP"
	RoleQualityControl Role = "QUALITY CONTROL"
	RoleMixerDriver    Role = "SOPIR TM"
	RoleEmployee       Role = "KARYAWAN"
)

// Roles lists the closed role set in display order.
var Roles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RolePlantHead,
	RoleBatchOperator,
	RoleQualityControl,
	RoleMixerDriver,
	RoleEmployee,
}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

type Location string

const (
	LocationHeadOffice Location = "KANTOR PUSAT"
	LocationCikarang   Location = "BP CIKARANG"
	LocationKarawang   Location = "BP KARAWANG"
	LocationBekasi     Location = "BP BEKASI"
)

var Locations = []Location{
	LocationHeadOffice,
	LocationCikarang,
	LocationKarawang,
	LocationBekasi,
}

// Valid reports whether l is empty (no assigned site) or one of the known sites.
func (l Location) Valid() bool {
	if l == "" {
		return true
	}
	for _, known := range Locations {
		if l == known {
			return true
		}
	}
	return false
}

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	NIK          string    `json:"nik" bson:"nik"`
	PasswordHash []byte    `json:"-" bson:"password_hash"`
	Role         Role      `json:"role" bson:"role"`
	Location     Location  `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// MatchesIdentifier compares identifier against the username and the NIK, ignoring case.
func (u User) MatchesIdentifier(identifier string) bool {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return false
	}
	return strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.NIK, identifier)
}

// CollidesWith reports whether u and other share any login identifier. Username and NIK
// are interchangeable at login, so the check is cross-field.
func (u User) CollidesWith(other User) bool {
	for _, mine := range []string{u.Username, u.NIK} {
		if mine != "" && other.MatchesIdentifier(mine) {
			return true
		}
	}
	return false
}

// Session returns the user without its password hash.
func (u User) Session(loggedInAt time.Time) Session {
	return Session{
		UserID:     u.ID,
		Username:   u.Username,
		NIK:        u.NIK,
		Role:       u.Role,
		Location:   u.Location,
		LoggedInAt: loggedInAt,
	}
}

// UserPatch carries the fields an update may change. Nil fields are left alone.
type UserPatch struct {
	Username     *string
	NIK          *string
	PasswordHash []byte
	Role         *Role
	Location     *Location
}

// Apply merges the patch into u. An empty PasswordHash keeps the stored one.
func (p UserPatch) Apply(u User) User {
	if p.Username != nil {
		u.Username = strings.TrimSpace(*p.Username)
	}
	if p.NIK != nil {
		u.NIK = strings.TrimSpace(*p.NIK)
	}
	if len(p.PasswordHash) > 0 {
		u.PasswordHash = p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Location != nil {
		u.Location = *p.Location
	}
	return u
}

type Session struct {
	UserID     string    `json:"id"`
	Username   string    `json:"username"`
	NIK        string    `json:"nik"`
	Role       Role      `json:"role"`
	Location   Location  `json:"location,omitempty"`
	LoggedInAt time.Time `json:"loggedInAt"`
}
