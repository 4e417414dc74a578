// Package types provides domain models shared across rulegate components.
//
// Minimal-dependency design: types.go, rules.go, actions.go and errors.go use
// only the standard library so that embedding callers (the surrounding ERP
// modules) can build evaluation contexts without pulling in engine or storage
// dependencies. ID utilities in ids.go import uuid but are isolated for
// selective inclusion.
package types

import (
	"fmt"
	"time"
)

// EntityKind identifies one of the known ERP entity kinds a rule can target.
// Closed enum: adding a new kind means adding a constant and its name mapping
// here, which keeps entity targeting exhaustively matchable at compile time
// instead of relying on runtime string lookups.
type EntityKind int

const (
	EntityUnspecified EntityKind = iota
	EntityEmployee
	EntityWorkOrder
	EntityCutter
	EntityMachine
	EntityCustomer
	EntityMaterial
	EntityInspectionLot
	EntityDepartment
)

var entityKindNames = map[EntityKind]string{
	EntityEmployee:      "employee",
	EntityWorkOrder:     "work_order",
	EntityCutter:        "cutter",
	EntityMachine:       "machine",
	EntityCustomer:      "customer",
	EntityMaterial:      "material",
	EntityInspectionLot: "inspection_lot",
	EntityDepartment:    "department",
}

// String returns the stable wire name for the entity kind.
func (k EntityKind) String() string {
	if name, ok := entityKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// ParseEntityKind converts a wire name back to an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	for k, name := range entityKindNames {
		if name == s {
			return k, nil
		}
	}
	return EntityUnspecified, fmt.Errorf("%w: %q", ErrUnknownEntityKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k EntityKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EntityKind) UnmarshalText(b []byte) error {
	parsed, err := ParseEntityKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// EntityRef is a stable reference to a concrete entity instance (kind + id).
// Used for scope restrictions, audit context references, and override keys.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// String renders the reference as kind/id for logs and audit rows.
func (r EntityRef) String() string {
	return r.Kind.String() + "/" + r.ID
}

// Entity is a live domain object a rule evaluation runs against.
//
// Field returns a terminal attribute value; Relation traverses to a related
// object. Both report absence via the second return instead of erroring, so
// the resolver can collapse every failure mode to Missing. SetField applies
// in-memory mutations requested by mutation actions; persisting the mutated
// object stays the caller's responsibility, inside the same transaction as
// the triggering save.
type Entity interface {
	Kind() EntityKind
	Ref() EntityRef
	Field(name string) (any, bool)
	Relation(name string) (Entity, bool)
	SetField(name string, value any) bool
}

// Document is the map-backed Entity implementation used by callers that load
// plain rows or JSON, and by tests. Field values hold the usual JSON scalar
// types (string, float64, bool, nil) plus time.Time.
type Document struct {
	kind      EntityKind
	id        string
	fields    map[string]any
	relations map[string]Entity
}

// NewDocument creates a document entity of the given kind and identifier.
func NewDocument(kind EntityKind, id string) *Document {
	return &Document{
		kind:      kind,
		id:        id,
		fields:    make(map[string]any),
		relations: make(map[string]Entity),
	}
}

// Set assigns a terminal attribute value. Returns the document for chaining.
func (d *Document) Set(name string, value any) *Document {
	d.fields[name] = value
	return d
}

// Link attaches a related entity under the given relation name.
// Linking nil records the relation as explicitly absent.
func (d *Document) Link(name string, e Entity) *Document {
	if e == nil {
		delete(d.relations, name)
		return d
	}
	d.relations[name] = e
	return d
}

func (d *Document) Kind() EntityKind { return d.kind }

func (d *Document) Ref() EntityRef { return EntityRef{Kind: d.kind, ID: d.id} }

func (d *Document) Field(name string) (any, bool) {
	v, ok := d.fields[name]
	return v, ok
}

func (d *Document) Relation(name string) (Entity, bool) {
	e, ok := d.relations[name]
	return e, ok
}

func (d *Document) SetField(name string, value any) bool {
	d.fields[name] = value
	return true
}

// Context carries everything one synchronous evaluation pass runs against:
// the live entities keyed by kind, the trigger event, template variables for
// message rendering, and the caller's confirmation/override state from a
// previous pass. A Context is not safe for concurrent use; each evaluation
// gets its own.
type Context struct {
	Trigger  string
	Entities map[EntityKind]Entity
	Vars     map[string]any

	// Primary names the entity being saved or acted on. Scope restrictions
	// and override requests key on its reference.
	Primary EntityKind

	// Roles of the acting user, matched against role-restricted scopes.
	Roles []string

	// Confirmed is set by the caller when re-invoking after a
	// require-confirmation outcome.
	Confirmed bool

	// OverrideReason is set by the caller when re-invoking after a
	// require-override-with-reason outcome.
	OverrideReason string

	// Now pins the evaluation clock for time-windowed scopes and effective
	// ranges. Zero means wall clock.
	Now time.Time

	applied map[string]bool
}

// NewContext creates an evaluation context for the given trigger event.
func NewContext(trigger string) *Context {
	return &Context{
		Trigger:  trigger,
		Entities: make(map[EntityKind]Entity),
		Vars:     make(map[string]any),
	}
}

// WithEntity registers an entity under its kind. The first registered entity
// becomes the primary unless Primary is set explicitly.
func (c *Context) WithEntity(e Entity) *Context {
	if len(c.Entities) == 0 && c.Primary == EntityUnspecified {
		c.Primary = e.Kind()
	}
	c.Entities[e.Kind()] = e
	return c
}

// WithVar registers a template variable for message rendering.
func (c *Context) WithVar(name string, value any) *Context {
	c.Vars[name] = value
	return c
}

// Entity returns the registered entity of the given kind.
func (c *Context) Entity(kind EntityKind) (Entity, bool) {
	e, ok := c.Entities[kind]
	return e, ok
}

// PrimaryRef returns the reference of the primary entity, or a zero ref when
// no primary entity is registered.
func (c *Context) PrimaryRef() EntityRef {
	if e, ok := c.Entities[c.Primary]; ok {
		return e.Ref()
	}
	return EntityRef{}
}

// Refs returns references for every registered entity, for audit recording.
func (c *Context) Refs() []EntityRef {
	refs := make([]EntityRef, 0, len(c.Entities))
	for _, e := range c.Entities {
		refs = append(refs, e.Ref())
	}
	return refs
}

// At returns the pinned evaluation time, falling back to the wall clock.
func (c *Context) At() time.Time {
	if !c.Now.IsZero() {
		return c.Now
	}
	return time.Now().UTC()
}

// MarkApplied records that a mutation identified by key already ran in this
// context. Returns false if it was already marked. Keys are rule-code scoped,
// which keeps mutation actions idempotent when the same rule fires twice
// against an unchanged context (e.g. a confirmation re-invoke).
func (c *Context) MarkApplied(key string) bool {
	if c.applied == nil {
		c.applied = make(map[string]bool)
	}
	if c.applied[key] {
		return false
	}
	c.applied[key] = true
	return true
}

// Resource limits enforced at rule compilation to bound evaluation cost.
const (
	// MaxPathDepth prevents unbounded traversal chains through related objects.
	MaxPathDepth = 16

	// MaxInListValues limits IN_LIST literal sets to keep membership checks linear.
	MaxInListValues = 64

	// MaxConditionNodes caps the total node count of a condition tree.
	MaxConditionNodes = 128

	// MaxTreeDepth caps group nesting to keep recursive evaluation shallow.
	MaxTreeDepth = 8
)
