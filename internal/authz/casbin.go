// Package authz enforces section access for a role with a casbin enforcer loaded from
// the route capability table.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"plantops/portal/internal/models"
	"plantops/portal/internal/route"
)

// defaultSubject stands in for roles the table does not list.
const defaultSubject = "*"

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

type Enforcer struct {
	enforcer *casbin.Enforcer
	known    map[models.Role]bool
}

// New loads table into an in-memory enforcer. Roles missing from table get
// route.DefaultSections.
func New(table route.CapabilityTable) (*Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}

	var rules [][]string
	known := make(map[models.Role]bool, len(table))
	for role, sections := range table {
		known[role] = true
		for _, section := range sections {
			rules = append(rules, []string{string(role), string(section)})
		}
	}
	for _, section := range route.DefaultSections {
		rules = append(rules, []string{defaultSubject, string(section)})
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("load capability policy: %w", err)
		}
	}

	return &Enforcer{enforcer: enforcer, known: known}, nil
}

func (e *Enforcer) subject(role models.Role) string {
	if e.known[role] {
		return string(role)
	}
	return defaultSubject
}

// Allows reports whether role may open section. SectionNone only needs a session.
func (e *Enforcer) Allows(role models.Role, section route.Section) (bool, error) {
	if section == route.SectionNone {
		return true, nil
	}
	return e.enforcer.Enforce(e.subject(role), string(section))
}

// AllowsPath resolves the section of path and checks it for role.
func (e *Enforcer) AllowsPath(role models.Role, path string) (bool, error) {
	return e.Allows(role, route.SectionOf(path))
}

// Sections lists what role may open, in route.Sections order.
func (e *Enforcer) Sections(role models.Role) []route.Section {
	var granted []route.Section
	for _, section := range route.Sections {
		if ok, err := e.Allows(role, section); err == nil && ok {
			granted = append(granted, section)
		}
	}
	return granted
}
