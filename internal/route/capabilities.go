package route

import "plantops/portal/internal/models"

// CapabilityTable lists, per role, the sections a session of that role may open.
type CapabilityTable map[models.Role][]Section

// Capabilities is the portal's access table. Every landing path returned by Resolve
// must fall in a section its role is granted here.
var Capabilities = CapabilityTable{
	models.RoleSuperAdmin:     {SectionAdmin, SectionPlant, SectionEmployee},
	models.RoleAdmin:          {SectionAdmin, SectionEmployee},
	models.RolePlantHead:      {SectionPlant, SectionEmployee},
	models.RoleBatchOperator:  {SectionPlant, SectionEmployee},
	models.RoleQualityControl: {SectionPlant, SectionEmployee},
	models.RoleMixerDriver:    {SectionEmployee},
	models.RoleEmployee:       {SectionEmployee},
}

// DefaultSections is granted to roles missing from a table, matching the fallback
// landing path of Resolve.
var DefaultSections = []Section{SectionEmployee}

// For returns the sections granted to role.
func (t CapabilityTable) For(role models.Role) []Section {
	if sections, ok := t[role]; ok {
		return sections
	}
	return DefaultSections
}

func (t CapabilityTable) Allows(role models.Role, section Section) bool {
	if section == SectionNone {
		return true
	}
	for _, granted := range t.For(role) {
		if granted == section {
			return true
		}
	}
	return false
}
