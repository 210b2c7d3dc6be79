package authz

// ConfigBuilder provides a fluent API for assembling a Config
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version: 1,
			Engine: EngineConfig{
				DecisionCacheTTL:     DefaultDecisionCacheTTL.Milliseconds(),
				MaxRelationshipDepth: DefaultMaxRelationshipDepth,
			},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddRole(r *Role) *ConfigBuilder {
	b.cfg.Roles = append(b.cfg.Roles, r)
	return b
}

func (b *ConfigBuilder) AddAssignment(a *RoleAssignment) *ConfigBuilder {
	b.cfg.Assignments = append(b.cfg.Assignments, a)
	return b
}

// Assign is shorthand for the common subject-to-role case.
func (b *ConfigBuilder) Assign(id, subjectID, roleID, tenantID string) *ConfigBuilder {
	return b.AddAssignment(&RoleAssignment{
		ID:          id,
		SubjectID:   subjectID,
		SubjectType: SubjectUser,
		RoleID:      roleID,
		TenantID:    tenantID,
	})
}

func (b *ConfigBuilder) AddPolicy(p *Policy) *ConfigBuilder {
	b.cfg.Policies = append(b.cfg.Policies, p)
	return b
}

func (b *ConfigBuilder) AddRelationship(rel *Relationship) *ConfigBuilder {
	b.cfg.Relationships = append(b.cfg.Relationships, rel)
	return b
}

func (b *ConfigBuilder) AddResource(res *Resource) *ConfigBuilder {
	b.cfg.Resources = append(b.cfg.Resources, res)
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) ConditionSettings(fn func(*ConditionConfig)) *ConfigBuilder {
	fn(&b.cfg.Conditions)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}
