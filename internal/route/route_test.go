package route

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"plantops/portal/internal/models"
)

func TestResolve(t *testing.T) {
	cases := map[models.Role]string{
		models.RoleSuperAdmin:     "/admin/dashboard",
		models.RoleAdmin:          "/admin/dashboard",
		models.RolePlantHead:      "/dashboard",
		models.RoleBatchOperator:  "/dashboard",
		models.RoleQualityControl: "/plant/specific-gravity",
		models.RoleMixerDriver:    "/karyawan/checklist-harian-tm",
		models.RoleEmployee:       "/karyawan/absensi-harian",
		models.Role("MANDOR"):     "/karyawan/absensi-harian",
		models.Role(""):           "/karyawan/absensi-harian",
	}
	for role, want := range cases {
		assert.Equal(t, want, Resolve(role), "role %q", role)
	}
}

func TestResolveIsTotalOverRoles(t *testing.T) {
	for _, role := range models.Roles {
		_, ok := landing[role]
		assert.True(t, ok, "role %q has no landing path", role)
	}
}

func TestSectionOf(t *testing.T) {
	cases := map[string]Section{
		"/admin":                        SectionAdmin,
		"/admin/users/42":               SectionAdmin,
		"/administrator":                SectionNone,
		"/dashboard":                    SectionPlant,
		"/plant/mixer-timer":            SectionPlant,
		"/karyawan/checklist-harian-tm": SectionEmployee,
		"/me":                           SectionNone,
		"/login":                        SectionNone,
	}
	for path, want := range cases {
		assert.Equal(t, want, SectionOf(path), "path %q", path)
	}
}

func TestLandingPathIsAllowed(t *testing.T) {
	for _, role := range append(models.Roles, models.Role("UNKNOWN")) {
		section := SectionOf(Resolve(role))
		assert.True(t, Capabilities.Allows(role, section), "role %q cannot open its own landing page", role)
	}
}

func TestCapabilities(t *testing.T) {
	assert.True(t, Capabilities.Allows(models.RoleSuperAdmin, SectionPlant))
	assert.True(t, Capabilities.Allows(models.RoleAdmin, SectionAdmin))
	assert.False(t, Capabilities.Allows(models.RoleAdmin, SectionPlant))
	assert.False(t, Capabilities.Allows(models.RoleMixerDriver, SectionAdmin))
	assert.True(t, Capabilities.Allows(models.RoleMixerDriver, SectionNone))
	assert.Equal(t, DefaultSections, Capabilities.For(models.Role("UNKNOWN")))
}
