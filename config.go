package authz

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

// Config is the declarative form of an authorization setup: tuning knobs
// plus seed data for every store.
type Config struct {
	Version       uint16            `json:"version" yaml:"version"`
	Engine        EngineConfig      `json:"engine" yaml:"engine"`
	Conditions    ConditionConfig   `json:"conditions" yaml:"conditions"`
	Roles         []*Role           `json:"roles,omitempty" yaml:"roles,omitempty"`
	Assignments   []*RoleAssignment `json:"assignments,omitempty" yaml:"assignments,omitempty"`
	Policies      []*Policy         `json:"policies,omitempty" yaml:"policies,omitempty"`
	Relationships []*Relationship   `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Resources     []*Resource       `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// EngineConfig tunes the service and its caches.
type EngineConfig struct {
	DecisionCacheTTL     int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	MaxRelationshipDepth int   `json:"max_relationship_depth" yaml:"max_relationship_depth"`
	AuditBuffer          int   `json:"audit_buffer" yaml:"audit_buffer"`
	RistrettoNumCounter  int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost     int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer      int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// CacheTTL returns the configured decision cache TTL, or the default.
func (e EngineConfig) CacheTTL() time.Duration {
	if e.DecisionCacheTTL > 0 {
		return time.Duration(e.DecisionCacheTTL) * time.Millisecond
	}
	return DefaultDecisionCacheTTL
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

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

// LoadBinary loads from the compact binary wire format.
func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	r := bytes.NewReader(data)
	return decodeBinaryConfig(r)
}

// EncodeBinaryConfig encodes config to the binary wire format.
func EncodeBinaryConfig(cfg *Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryConfig(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks referential integrity and enum values before a config is
// applied anywhere.
func (c *Config) Validate() error {
	roleIDs := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.ID == "" {
			return fmt.Errorf("role with empty id")
		}
		if roleIDs[r.ID] {
			return fmt.Errorf("duplicate role id %s", r.ID)
		}
		roleIDs[r.ID] = true
	}
	for _, r := range c.Roles {
		if r.ParentID != "" && !roleIDs[r.ParentID] {
			return fmt.Errorf("role %s references unknown parent %s", r.ID, r.ParentID)
		}
	}
	for _, a := range c.Assignments {
		if a.SubjectID == "" || a.RoleID == "" {
			return fmt.Errorf("assignment %s missing subject or role", a.ID)
		}
		if !roleIDs[a.RoleID] {
			return fmt.Errorf("assignment %s references unknown role %s", a.ID, a.RoleID)
		}
	}
	policyIDs := make(map[string]bool, len(c.Policies))
	for _, p := range c.Policies {
		if p.ID == "" {
			return fmt.Errorf("policy with empty id")
		}
		if policyIDs[p.ID] {
			return fmt.Errorf("duplicate policy id %s", p.ID)
		}
		policyIDs[p.ID] = true
		if p.Effect != EffectAllow && p.Effect != EffectDeny {
			return fmt.Errorf("policy %s has invalid effect %q", p.ID, p.Effect)
		}
		if len(p.Actions) == 0 || len(p.Resources) == 0 {
			return fmt.Errorf("policy %s needs at least one action and one resource", p.ID)
		}
		for key, cond := range p.Conditions {
			if cond.Attribute == "" {
				return fmt.Errorf("policy %s condition %s has empty attribute", p.ID, key)
			}
			if !validOperator(cond.Operator) {
				return fmt.Errorf("policy %s condition %s has invalid operator %q", p.ID, key, cond.Operator)
			}
		}
	}
	for _, rel := range c.Relationships {
		if rel.SourceID == "" || rel.TargetID == "" {
			return fmt.Errorf("relationship %s missing source or target", rel.ID)
		}
		if rel.Type == "" {
			return fmt.Errorf("relationship %s missing type", rel.ID)
		}
	}
	return nil
}

func validOperator(op ConditionOperator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpGt, OpLt, OpGte, OpLte,
		OpContains, OpStartsWith, OpEndsWith, OpRegex, OpExists, OpNotExists:
		return true
	}
	return false
}

// RoleWriter seeds role data. Both the memory and SQL role stores satisfy it.
type RoleWriter interface {
	CreateRole(ctx context.Context, r *Role) error
	AssignRole(ctx context.Context, a *RoleAssignment) error
}

// PolicyWriter seeds policy data.
type PolicyWriter interface {
	CreatePolicy(ctx context.Context, p *Policy) error
}

// RelationshipWriter seeds graph data.
type RelationshipWriter interface {
	CreateRelationship(ctx context.Context, rel *Relationship) error
	CreateResource(ctx context.Context, res *Resource) error
}

// Apply seeds the stores with the config's data. Nil writers skip their
// sections, so partial deployments can apply what they host.
func (c *Config) Apply(ctx context.Context, roles RoleWriter, policies PolicyWriter, rels RelationshipWriter) error {
	if roles != nil {
		for _, r := range c.Roles {
			if err := roles.CreateRole(ctx, r); err != nil {
				return fmt.Errorf("create role %s: %w", r.ID, err)
			}
		}
		for _, a := range c.Assignments {
			if err := roles.AssignRole(ctx, a); err != nil {
				return fmt.Errorf("assign role %s to %s: %w", a.RoleID, a.SubjectID, err)
			}
		}
	}
	if policies != nil {
		for _, p := range c.Policies {
			if err := policies.CreatePolicy(ctx, p); err != nil {
				return fmt.Errorf("create policy %s: %w", p.ID, err)
			}
		}
	}
	if rels != nil {
		for _, rel := range c.Relationships {
			if err := rels.CreateRelationship(ctx, rel); err != nil {
				return fmt.Errorf("create relationship %s: %w", rel.ID, err)
			}
		}
		for _, res := range c.Resources {
			if err := rels.CreateResource(ctx, res); err != nil {
				return fmt.Errorf("create resource %s: %w", res.ID, err)
			}
		}
	}
	return nil
}

// Binary protocol encoding/decoding
const (
	binaryMagic   = 0x415A // "AZ"
	binaryVersion = 1
)

func encodeBinaryConfig(cfg *Config, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + version(2) + config_version(2)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, cfg.Version)

	writeSection(buf, 0x01, func(b *bytes.Buffer) { encodeRoles(b, cfg.Roles) })
	writeSection(buf, 0x02, func(b *bytes.Buffer) { encodeAssignments(b, cfg.Assignments) })
	writeSection(buf, 0x03, func(b *bytes.Buffer) { encodePolicies(b, cfg.Policies) })
	writeSection(buf, 0x04, func(b *bytes.Buffer) { encodeRelationships(b, cfg.Relationships) })
	writeSection(buf, 0x05, func(b *bytes.Buffer) { encodeResources(b, cfg.Resources) })
	writeSection(buf, 0x06, func(b *bytes.Buffer) { encodeEngineConfig(b, &cfg.Engine) })
	writeSection(buf, 0x07, func(b *bytes.Buffer) { encodeConditionConfig(b, &cfg.Conditions) })

	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var magic, ver, cfgVer uint16
	binary.Read(r, binary.LittleEndian, &magic)
	binary.Read(r, binary.LittleEndian, &ver)
	binary.Read(r, binary.LittleEndian, &cfgVer)

	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if ver != binaryVersion {
		return nil, fmt.Errorf("unsupported version: %d", ver)
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
		binary.Read(r, binary.LittleEndian, &size)
		data := make([]byte, size)
		io.ReadFull(r, data)

		switch tag {
		case 0x01:
			cfg.Roles = decodeRoles(data)
		case 0x02:
			cfg.Assignments = decodeAssignments(data)
		case 0x03:
			cfg.Policies = decodePolicies(data)
		case 0x04:
			cfg.Relationships = decodeRelationships(data)
		case 0x05:
			cfg.Resources = decodeResources(data)
		case 0x06:
			cfg.Engine = decodeEngineConfig(data)
		case 0x07:
			cfg.Conditions = decodeConditionConfig(data)
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
	r.Read(b)
	return string(b)
}

func writeStrings(buf *bytes.Buffer, list []string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(list)))
	for _, s := range list {
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

func writeUnixTime(buf *bytes.Buffer, t time.Time) {
	if t.IsZero() {
		binary.Write(buf, binary.LittleEndian, int64(0))
		return
	}
	binary.Write(buf, binary.LittleEndian, t.Unix())
}

func readUnixTime(r *bytes.Reader) time.Time {
	var unix int64
	binary.Read(r, binary.LittleEndian, &unix)
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// writeJSON round-trips structured values (conditions, attribute maps)
// through JSON inside the binary frame.
func writeJSON(buf *bytes.Buffer, v any) {
	b, _ := json.Marshal(v)
	writeString(buf, string(b))
}

func encodeRoles(buf *bytes.Buffer, roles []*Role) {
	binary.Write(buf, binary.LittleEndian, uint16(len(roles)))
	for _, role := range roles {
		writeString(buf, role.ID)
		writeString(buf, role.TenantID)
		writeString(buf, role.Name)
		writeString(buf, role.ParentID)
		writeStrings(buf, role.Permissions)
	}
}

func decodeRoles(data []byte) []*Role {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	roles := make([]*Role, count)
	for i := range roles {
		role := &Role{}
		role.ID = readString(r)
		role.TenantID = readString(r)
		role.Name = readString(r)
		role.ParentID = readString(r)
		role.Permissions = readStrings(r)
		role.CreatedAt = time.Now()
		roles[i] = role
	}
	return roles
}

func encodeAssignments(buf *bytes.Buffer, assignments []*RoleAssignment) {
	binary.Write(buf, binary.LittleEndian, uint16(len(assignments)))
	for _, a := range assignments {
		writeString(buf, a.ID)
		writeString(buf, a.SubjectID)
		writeString(buf, string(a.SubjectType))
		writeString(buf, a.RoleID)
		writeString(buf, a.TenantID)
		writeUnixTime(buf, a.ExpiresAt)
	}
}

func decodeAssignments(data []byte) []*RoleAssignment {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	assignments := make([]*RoleAssignment, count)
	for i := range assignments {
		a := &RoleAssignment{}
		a.ID = readString(r)
		a.SubjectID = readString(r)
		a.SubjectType = SubjectType(readString(r))
		a.RoleID = readString(r)
		a.TenantID = readString(r)
		a.ExpiresAt = readUnixTime(r)
		a.CreatedAt = time.Now()
		assignments[i] = a
	}
	return assignments
}

func encodePolicies(buf *bytes.Buffer, policies []*Policy) {
	binary.Write(buf, binary.LittleEndian, uint16(len(policies)))
	for _, p := range policies {
		writeString(buf, p.ID)
		writeString(buf, p.TenantID)
		writeString(buf, p.Name)
		buf.WriteByte(map[Effect]byte{EffectAllow: 1, EffectDeny: 2}[p.Effect])
		writeStrings(buf, p.Actions)
		writeStrings(buf, p.Resources)
		writeStrings(buf, p.Subjects)
		writeJSON(buf, p.Conditions)
		binary.Write(buf, binary.LittleEndian, int32(p.Priority))
		buf.WriteByte(map[bool]byte{true: 1, false: 0}[p.Enabled])
	}
}

func decodePolicies(data []byte) []*Policy {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	policies := make([]*Policy, count)
	for i := range policies {
		p := &Policy{}
		p.ID = readString(r)
		p.TenantID = readString(r)
		p.Name = readString(r)
		eff, _ := r.ReadByte()
		p.Effect = map[byte]Effect{1: EffectAllow, 2: EffectDeny}[eff]
		p.Actions = readStrings(r)
		p.Resources = readStrings(r)
		p.Subjects = readStrings(r)
		condJSON := readString(r)
		_ = json.Unmarshal([]byte(condJSON), &p.Conditions)
		var pri int32
		binary.Read(r, binary.LittleEndian, &pri)
		p.Priority = int(pri)
		enb, _ := r.ReadByte()
		p.Enabled = enb == 1
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
		policies[i] = p
	}
	return policies
}

func encodeRelationships(buf *bytes.Buffer, rels []*Relationship) {
	binary.Write(buf, binary.LittleEndian, uint16(len(rels)))
	for _, rel := range rels {
		writeString(buf, rel.ID)
		writeString(buf, rel.SourceID)
		writeString(buf, string(rel.SourceKind))
		writeString(buf, rel.TargetID)
		writeString(buf, string(rel.TargetKind))
		writeString(buf, string(rel.Type))
		writeString(buf, rel.TenantID)
		writeUnixTime(buf, rel.ExpiresAt)
		writeJSON(buf, rel.Attributes)
	}
}

func decodeRelationships(data []byte) []*Relationship {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	rels := make([]*Relationship, count)
	for i := range rels {
		rel := &Relationship{}
		rel.ID = readString(r)
		rel.SourceID = readString(r)
		rel.SourceKind = EntityKind(readString(r))
		rel.TargetID = readString(r)
		rel.TargetKind = EntityKind(readString(r))
		rel.Type = RelationType(readString(r))
		rel.TenantID = readString(r)
		rel.ExpiresAt = readUnixTime(r)
		attrsJSON := readString(r)
		_ = json.Unmarshal([]byte(attrsJSON), &rel.Attributes)
		rel.CreatedAt = time.Now()
		rels[i] = rel
	}
	return rels
}

func encodeResources(buf *bytes.Buffer, resources []*Resource) {
	binary.Write(buf, binary.LittleEndian, uint16(len(resources)))
	for _, res := range resources {
		writeString(buf, res.ID)
		writeString(buf, res.Type)
		writeString(buf, res.TenantID)
		writeString(buf, res.OwnerID)
		writeString(buf, res.ParentID)
		writeString(buf, string(res.Visibility))
		writeJSON(buf, res.Attributes)
	}
}

func decodeResources(data []byte) []*Resource {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	resources := make([]*Resource, count)
	for i := range resources {
		res := &Resource{}
		res.ID = readString(r)
		res.Type = readString(r)
		res.TenantID = readString(r)
		res.OwnerID = readString(r)
		res.ParentID = readString(r)
		res.Visibility = Visibility(readString(r))
		attrsJSON := readString(r)
		_ = json.Unmarshal([]byte(attrsJSON), &res.Attributes)
		res.CreatedAt = time.Now()
		resources[i] = res
	}
	return resources
}

func encodeEngineConfig(buf *bytes.Buffer, cfg *EngineConfig) {
	binary.Write(buf, binary.LittleEndian, cfg.DecisionCacheTTL)
	binary.Write(buf, binary.LittleEndian, int32(cfg.MaxRelationshipDepth))
	binary.Write(buf, binary.LittleEndian, int32(cfg.AuditBuffer))
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoNumCounter)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoMaxCost)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoBuffer)
}

func decodeEngineConfig(data []byte) EngineConfig {
	r := bytes.NewReader(data)
	cfg := EngineConfig{}
	binary.Read(r, binary.LittleEndian, &cfg.DecisionCacheTTL)
	var depth, audit int32
	binary.Read(r, binary.LittleEndian, &depth)
	cfg.MaxRelationshipDepth = int(depth)
	binary.Read(r, binary.LittleEndian, &audit)
	cfg.AuditBuffer = int(audit)
	binary.Read(r, binary.LittleEndian, &cfg.RistrettoNumCounter)
	binary.Read(r, binary.LittleEndian, &cfg.RistrettoMaxCost)
	binary.Read(r, binary.LittleEndian, &cfg.RistrettoBuffer)
	return cfg
}

func encodeConditionConfig(buf *bytes.Buffer, cfg *ConditionConfig) {
	binary.Write(buf, binary.LittleEndian, int32(cfg.BusinessHoursStart))
	binary.Write(buf, binary.LittleEndian, int32(cfg.BusinessHoursEnd))
	writeStrings(buf, cfg.AllowedIPRanges)
}

func decodeConditionConfig(data []byte) ConditionConfig {
	r := bytes.NewReader(data)
	cfg := ConditionConfig{}
	var start, end int32
	binary.Read(r, binary.LittleEndian, &start)
	binary.Read(r, binary.LittleEndian, &end)
	cfg.BusinessHoursStart = int(start)
	cfg.BusinessHoursEnd = int(end)
	cfg.AllowedIPRanges = readStrings(r)
	return cfg
}
