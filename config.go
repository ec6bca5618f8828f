package permit

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of an entitlement set: roles, groups,
// assignments and templates plus engine settings, loadable from YAML,
// JSON or the compact binary format.
type Config struct {
	Version     uint16        `json:"version" yaml:"version"`
	Roles       []*Role       `json:"roles" yaml:"roles"`
	Groups      []*Group      `json:"groups" yaml:"groups"`
	Assignments []*Assignment `json:"assignments" yaml:"assignments"`
	Templates   []*Template   `json:"templates,omitempty" yaml:"templates,omitempty"`
	Engine      EngineConfig  `json:"engine" yaml:"engine"`
}

// EngineConfig carries evaluation settings alongside the entity data.
type EngineConfig struct {
	StrictMode      bool   `json:"strict_mode" yaml:"strict_mode"`
	DisableWildcard bool   `json:"disable_wildcard" yaml:"disable_wildcard"`
	Separator       string `json:"separator,omitempty" yaml:"separator,omitempty"`
	CacheTTL        int64  `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	AuditBufferSize int    `json:"audit_buffer_size" yaml:"audit_buffer_size"`
}

// Options converts the settings into engine options.
func (c EngineConfig) Options() []EngineOption {
	opts := []EngineOption{
		WithStrictMode(c.StrictMode),
		WithWildcardMatching(!c.DisableWildcard),
	}
	if c.Separator != "" {
		opts = append(opts, WithSeparator(c.Separator))
	}
	if c.CacheTTL > 0 {
		opts = append(opts, WithGrantCache(NewMemoryGrantCache(time.Duration(c.CacheTTL)*time.Millisecond)))
	}
	if c.AuditBufferSize > 0 {
		opts = append(opts, WithAuditBufferSize(c.AuditBufferSize))
	}
	return opts
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBinary loads the tag+length binary format.
func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	return decodeBinaryConfig(bytes.NewReader(data))
}

// EncodeBinaryConfig encodes config into the binary format.
func EncodeBinaryConfig(cfg *Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryConfig(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) ToYAML() ([]byte, error) { return yaml.Marshal(c) }

func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

// Validate rejects entries that would be silently useless at runtime.
func (c *Config) Validate() error {
	for _, r := range c.Roles {
		if r.ID == "" {
			return fmt.Errorf("role with empty id")
		}
		if err := validateGrants(r.Permissions); err != nil {
			return fmt.Errorf("role %s: %w", r.ID, err)
		}
	}
	for _, g := range c.Groups {
		if g.ID == "" {
			return fmt.Errorf("group with empty id")
		}
		if err := validateGrants(g.Permissions); err != nil {
			return fmt.Errorf("group %s: %w", g.ID, err)
		}
		for _, m := range g.Members {
			if (m.SubjectID == "") == (m.GroupID == "") {
				return fmt.Errorf("group %s: member must set exactly one of subject_id or group_id", g.ID)
			}
		}
	}
	for _, a := range c.Assignments {
		if a.SubjectID == "" {
			return fmt.Errorf("assignment with empty subject_id")
		}
		if err := validateGrants(a.DirectGrants); err != nil {
			return fmt.Errorf("assignment %s: %w", a.SubjectID, err)
		}
	}
	return nil
}

func validateGrants(grants []Grant) error {
	for _, g := range grants {
		if g.Pattern == "" {
			return fmt.Errorf("grant with empty pattern")
		}
		if g.Effect != "" && g.Effect != EffectAllow && g.Effect != EffectDeny {
			return fmt.Errorf("grant %s: unknown effect %q", g.Pattern, g.Effect)
		}
		for _, c := range g.Conditions {
			if !c.Operator.Valid() {
				return fmt.Errorf("grant %s: unknown operator %q", g.Pattern, c.Operator)
			}
		}
	}
	return nil
}

// ApplyConfig upserts the config's entities through the engine's stores
// and applies engine settings that can change after construction.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Engine.Separator != "" {
		e.separator = cfg.Engine.Separator
		e.resolver.Matcher.Separator = cfg.Engine.Separator
	}
	e.resolver.StrictMode = cfg.Engine.StrictMode
	e.resolver.Matcher.Wildcards = !cfg.Engine.DisableWildcard

	for _, r := range cfg.Roles {
		existing, err := e.roles.GetRole(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("lookup role %s: %w", r.ID, err)
		}
		if existing == nil {
			err = e.CreateRole(ctx, r)
		} else {
			err = e.UpdateRole(ctx, r)
		}
		if err != nil {
			return fmt.Errorf("apply role %s: %w", r.ID, err)
		}
	}
	for _, g := range cfg.Groups {
		existing, err := e.groups.GetGroup(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("lookup group %s: %w", g.ID, err)
		}
		if existing == nil {
			err = e.CreateGroup(ctx, g)
		} else {
			err = e.UpdateGroup(ctx, g)
		}
		if err != nil {
			return fmt.Errorf("apply group %s: %w", g.ID, err)
		}
	}
	if e.templates != nil {
		for _, t := range cfg.Templates {
			existing, err := e.templates.GetTemplate(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("lookup template %s: %w", t.ID, err)
			}
			if existing == nil {
				err = e.templates.CreateTemplate(ctx, t)
			} else {
				err = e.templates.UpdateTemplate(ctx, t)
			}
			if err != nil {
				return fmt.Errorf("apply template %s: %w", t.ID, err)
			}
		}
	}
	for _, a := range cfg.Assignments {
		e.normalizeGrants(a.DirectGrants)
		existing, err := e.assignments.GetAssignment(ctx, a.SubjectID)
		if err != nil {
			return fmt.Errorf("lookup assignment %s: %w", a.SubjectID, err)
		}
		if existing == nil {
			err = e.assignments.CreateAssignment(ctx, a)
		} else {
			err = e.assignments.UpdateAssignment(ctx, a)
		}
		if err != nil {
			return fmt.Errorf("apply assignment %s: %w", a.SubjectID, err)
		}
		e.invalidateSubject(a.SubjectID)
	}
	return nil
}

// ============================================================================
// BINARY PROTOCOL
// ============================================================================

const (
	binaryMagic   = 0x504D // "PM"
	binaryVersion = 1
)

const (
	sectionRoles       = 0x01
	sectionGroups      = 0x02
	sectionAssignments = 0x03
	sectionTemplates   = 0x04
	sectionEngine      = 0x05
)

func encodeBinaryConfig(cfg *Config, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + format version(2) + config version(2)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, cfg.Version)

	writeSection(buf, sectionRoles, func(b *bytes.Buffer) { encodeRoles(b, cfg.Roles) })
	writeSection(buf, sectionGroups, func(b *bytes.Buffer) { encodeGroups(b, cfg.Groups) })
	writeSection(buf, sectionAssignments, func(b *bytes.Buffer) { encodeAssignments(b, cfg.Assignments) })
	writeSection(buf, sectionTemplates, func(b *bytes.Buffer) { encodeTemplates(b, cfg.Templates) })
	writeSection(buf, sectionEngine, func(b *bytes.Buffer) { encodeEngineConfig(b, &cfg.Engine) })

	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var magic, ver, cfgVer uint16
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	binary.Read(r, binary.LittleEndian, &ver)
	binary.Read(r, binary.LittleEndian, &cfgVer)
	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if ver != binaryVersion {
		return nil, fmt.Errorf("unsupported format version: %d", ver)
	}
	cfg.Version = cfgVer

	for {
		var tag uint8
		if err := binary.Read(r, binary.LittleEndian, &tag); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		switch tag {
		case sectionRoles:
			cfg.Roles = decodeRolesSection(data)
		case sectionGroups:
			cfg.Groups = decodeGroupsSection(data)
		case sectionAssignments:
			cfg.Assignments = decodeAssignmentsSection(data)
		case sectionTemplates:
			cfg.Templates = decodeTemplatesSection(data)
		case sectionEngine:
			cfg.Engine = decodeEngineSection(data)
		}
	}
	return cfg, nil
}

func writeSection(buf *bytes.Buffer, tag uint8, fn func(*bytes.Buffer)) {
	tmp := &bytes.Buffer{}
	fn(tmp)
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, uint32(tmp.Len()))
	buf.Write(tmp.Bytes())
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) string {
	var l uint16
	binary.Read(r, binary.LittleEndian, &l)
	b := make([]byte, l)
	io.ReadFull(r, b)
	return string(b)
}

// Grants nest conditions with arbitrary value types, so grant lists ride
// as JSON inside the binary frame.
func writeGrants(buf *bytes.Buffer, grants []Grant) {
	data, _ := json.Marshal(grants)
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
}

func readGrants(r *bytes.Reader) []Grant {
	var l uint32
	binary.Read(r, binary.LittleEndian, &l)
	data := make([]byte, l)
	io.ReadFull(r, data)
	var grants []Grant
	_ = json.Unmarshal(data, &grants)
	return grants
}

func writeStrings(buf *bytes.Buffer, items []string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(items)))
	for _, s := range items {
		writeString(buf, s)
	}
}

func readStrings(r *bytes.Reader) []string {
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	out := make([]string, count)
	for i := range out {
		out[i] = readString(r)
	}
	return out
}

func encodeRoles(buf *bytes.Buffer, roles []*Role) {
	binary.Write(buf, binary.LittleEndian, uint16(len(roles)))
	for _, role := range roles {
		writeString(buf, role.ID)
		writeString(buf, role.Name)
		writeGrants(buf, role.Permissions)
	}
}

func decodeRolesSection(data []byte) []*Role {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	roles := make([]*Role, count)
	for i := range roles {
		role := &Role{}
		role.ID = readString(r)
		role.Name = readString(r)
		role.Permissions = readGrants(r)
		roles[i] = role
	}
	return roles
}

func encodeGroups(buf *bytes.Buffer, groups []*Group) {
	binary.Write(buf, binary.LittleEndian, uint16(len(groups)))
	for _, g := range groups {
		writeString(buf, g.ID)
		writeString(buf, g.Name)
		binary.Write(buf, binary.LittleEndian, uint16(len(g.Members)))
		for _, m := range g.Members {
			writeString(buf, m.SubjectID)
			writeString(buf, m.GroupID)
		}
		writeGrants(buf, g.Permissions)
	}
}

func decodeGroupsSection(data []byte) []*Group {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	groups := make([]*Group, count)
	for i := range groups {
		g := &Group{}
		g.ID = readString(r)
		g.Name = readString(r)
		var mc uint16
		binary.Read(r, binary.LittleEndian, &mc)
		g.Members = make([]GroupMember, mc)
		for j := range g.Members {
			g.Members[j].SubjectID = readString(r)
			g.Members[j].GroupID = readString(r)
		}
		g.Permissions = readGrants(r)
		groups[i] = g
	}
	return groups
}

func encodeAssignments(buf *bytes.Buffer, assignments []*Assignment) {
	binary.Write(buf, binary.LittleEndian, uint16(len(assignments)))
	for _, a := range assignments {
		writeString(buf, a.SubjectID)
		writeStrings(buf, a.RoleIDs)
		writeStrings(buf, a.GroupIDs)
		writeGrants(buf, a.DirectGrants)
	}
}

func decodeAssignmentsSection(data []byte) []*Assignment {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	assignments := make([]*Assignment, count)
	for i := range assignments {
		a := &Assignment{}
		a.SubjectID = readString(r)
		a.RoleIDs = readStrings(r)
		a.GroupIDs = readStrings(r)
		a.DirectGrants = readGrants(r)
		assignments[i] = a
	}
	return assignments
}

func encodeTemplates(buf *bytes.Buffer, templates []*Template) {
	binary.Write(buf, binary.LittleEndian, uint16(len(templates)))
	for _, t := range templates {
		writeString(buf, t.ID)
		writeString(buf, t.Name)
		writeString(buf, t.Description)
		writeGrants(buf, t.Grants)
	}
}

func decodeTemplatesSection(data []byte) []*Template {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	if count == 0 {
		return nil
	}
	templates := make([]*Template, count)
	for i := range templates {
		t := &Template{}
		t.ID = readString(r)
		t.Name = readString(r)
		t.Description = readString(r)
		t.Grants = readGrants(r)
		templates[i] = t
	}
	return templates
}

func encodeEngineConfig(buf *bytes.Buffer, cfg *EngineConfig) {
	buf.WriteByte(boolByte(cfg.StrictMode))
	buf.WriteByte(boolByte(cfg.DisableWildcard))
	writeString(buf, cfg.Separator)
	binary.Write(buf, binary.LittleEndian, cfg.CacheTTL)
	binary.Write(buf, binary.LittleEndian, int32(cfg.AuditBufferSize))
}

func decodeEngineSection(data []byte) EngineConfig {
	r := bytes.NewReader(data)
	cfg := EngineConfig{}
	b, _ := r.ReadByte()
	cfg.StrictMode = b == 1
	b, _ = r.ReadByte()
	cfg.DisableWildcard = b == 1
	cfg.Separator = readString(r)
	binary.Read(r, binary.LittleEndian, &cfg.CacheTTL)
	var abs int32
	binary.Read(r, binary.LittleEndian, &abs)
	cfg.AuditBufferSize = int(abs)
	return cfg
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
