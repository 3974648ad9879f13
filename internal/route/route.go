// Package route maps roles to their landing pages and paths to the sections that
// guard them.
package route

import (
	"strings"

	"plantops/portal/internal/models"
)

const (
	LoginPath   = "/login"
	DefaultPath = "/karyawan/absensi-harian"
)

var landing = map[models.Role]string{
	models.RoleSuperAdmin:     "/admin/dashboard",
	models.RoleAdmin:          "/admin/dashboard",
	models.RolePlantHead:      "/dashboard",
	models.RoleBatchOperator:  "/dashboard",
	models.RoleQualityControl: "/plant/specific-gravity",
	models.RoleMixerDriver:    "/karyawan/checklist-harian-tm",
	models.RoleEmployee:       DefaultPath,
}

// Resolve returns the canonical landing path for role. Unknown roles land on DefaultPath.
func Resolve(role models.Role) string {
	if path, ok := landing[role]; ok {
		return path
	}
	return DefaultPath
}

type Section string

const (
	SectionNone     Section = ""
	SectionAdmin    Section = "admin"
	SectionPlant    Section = "plant"
	SectionEmployee Section = "karyawan"
)

var Sections = []Section{SectionAdmin, SectionPlant, SectionEmployee}

// SectionOf returns the section a path belongs to, or SectionNone for paths that only
// require an authenticated session.
func SectionOf(path string) Section {
	switch {
	case hasSegmentPrefix(path, "/admin"):
		return SectionAdmin
	case hasSegmentPrefix(path, "/dashboard"), hasSegmentPrefix(path, "/plant"):
		return SectionPlant
	case hasSegmentPrefix(path, "/karyawan"):
		return SectionEmployee
	default:
		return SectionNone
	}
}

func hasSegmentPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}
