package permit

// Builders provide a fluent API for creating Grants, Roles, Groups and
// Assignments.

// GrantBuilder builds a Grant
type GrantBuilder struct {
	g Grant
}

func NewGrantBuilder(pattern string) *GrantBuilder {
	return &GrantBuilder{g: Grant{Pattern: pattern, Effect: EffectAllow}}
}

func (b *GrantBuilder) Effect(e Effect) *GrantBuilder { b.g.Effect = e; return b }
func (b *GrantBuilder) Deny() *GrantBuilder           { b.g.Effect = EffectDeny; return b }
func (b *GrantBuilder) Condition(attr string, op Operator, value any) *GrantBuilder {
	b.g.Conditions = append(b.g.Conditions, Condition{Attribute: attr, Operator: op, Value: value})
	return b
}
func (b *GrantBuilder) Build() Grant { return b.g }

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{Permissions: []Grant{}}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder  { b.r.ID = id; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder { b.r.Name = n; return b }
func (b *RoleBuilder) Allow(patterns ...string) *RoleBuilder {
	for _, p := range patterns {
		b.r.Permissions = append(b.r.Permissions, Grant{Pattern: p, Effect: EffectAllow})
	}
	return b
}
func (b *RoleBuilder) Deny(patterns ...string) *RoleBuilder {
	for _, p := range patterns {
		b.r.Permissions = append(b.r.Permissions, Grant{Pattern: p, Effect: EffectDeny})
	}
	return b
}
func (b *RoleBuilder) Grant(g Grant) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, g)
	return b
}
func (b *RoleBuilder) Build() *Role { return b.r }

// GroupBuilder builds a Group
type GroupBuilder struct {
	g *Group
}

func NewGroupBuilder() *GroupBuilder {
	return &GroupBuilder{g: &Group{Members: []GroupMember{}, Permissions: []Grant{}}}
}

func (b *GroupBuilder) ID(id string) *GroupBuilder  { b.g.ID = id; return b }
func (b *GroupBuilder) Name(n string) *GroupBuilder { b.g.Name = n; return b }
func (b *GroupBuilder) Subject(ids ...string) *GroupBuilder {
	for _, id := range ids {
		b.g.Members = append(b.g.Members, GroupMember{SubjectID: id})
	}
	return b
}
func (b *GroupBuilder) Nested(groupIDs ...string) *GroupBuilder {
	for _, id := range groupIDs {
		b.g.Members = append(b.g.Members, GroupMember{GroupID: id})
	}
	return b
}
func (b *GroupBuilder) Allow(patterns ...string) *GroupBuilder {
	for _, p := range patterns {
		b.g.Permissions = append(b.g.Permissions, Grant{Pattern: p, Effect: EffectAllow})
	}
	return b
}
func (b *GroupBuilder) Deny(patterns ...string) *GroupBuilder {
	for _, p := range patterns {
		b.g.Permissions = append(b.g.Permissions, Grant{Pattern: p, Effect: EffectDeny})
	}
	return b
}
func (b *GroupBuilder) Grant(g Grant) *GroupBuilder {
	b.g.Permissions = append(b.g.Permissions, g)
	return b
}
func (b *GroupBuilder) Build() *Group { return b.g }

// AssignmentBuilder builds an Assignment
type AssignmentBuilder struct {
	a *Assignment
}

func NewAssignmentBuilder(subjectID string) *AssignmentBuilder {
	return &AssignmentBuilder{a: &Assignment{SubjectID: subjectID}}
}

func (b *AssignmentBuilder) Roles(ids ...string) *AssignmentBuilder {
	b.a.RoleIDs = append(b.a.RoleIDs, ids...)
	return b
}
func (b *AssignmentBuilder) Groups(ids ...string) *AssignmentBuilder {
	b.a.GroupIDs = append(b.a.GroupIDs, ids...)
	return b
}
func (b *AssignmentBuilder) Grant(g Grant) *AssignmentBuilder {
	b.a.DirectGrants = append(b.a.DirectGrants, g)
	return b
}
func (b *AssignmentBuilder) Allow(patterns ...string) *AssignmentBuilder {
	for _, p := range patterns {
		b.a.DirectGrants = append(b.a.DirectGrants, Grant{Pattern: p, Effect: EffectAllow})
	}
	return b
}
func (b *AssignmentBuilder) Build() *Assignment { return b.a }
