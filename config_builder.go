package permit

// ConfigBuilder provides a fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version:     1,
			Roles:       []*Role{},
			Groups:      []*Group{},
			Assignments: []*Assignment{},
			Engine: EngineConfig{
				CacheTTL:        60000,
				AuditBufferSize: 1024,
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

func (b *ConfigBuilder) AddGroup(g *Group) *ConfigBuilder {
	b.cfg.Groups = append(b.cfg.Groups, g)
	return b
}

func (b *ConfigBuilder) AddAssignment(a *Assignment) *ConfigBuilder {
	b.cfg.Assignments = append(b.cfg.Assignments, a)
	return b
}

func (b *ConfigBuilder) AddTemplate(t *Template) *ConfigBuilder {
	b.cfg.Templates = append(b.cfg.Templates, t)
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
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
