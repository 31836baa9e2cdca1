package ctxrecord

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Schema is the layout of one matcher variant's record.
type Schema struct {
	Name    string
	Magic   uint64
	Version uint32
	Fields  []FieldDesc
	// ReservedFrom is the start of the zero-filled tail.
	ReservedFrom int
}

func (s *Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("schema name is required")
	}
	if s.Magic == 0 {
		return fmt.Errorf("schema %s: magic must be non-zero", s.Name)
	}
	if s.ReservedFrom < BodyOffset || s.ReservedFrom > Size {
		return fmt.Errorf("schema %s: reserved tail %d outside body", s.Name, s.ReservedFrom)
	}

	names := make(map[string]struct{}, len(s.Fields))
	for i, field := range s.Fields {
		if _, dup := names[field.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.Name, field.Name)
		}
		names[field.Name] = struct{}{}

		inPadding := field.Offset >= HeaderPadStart && field.End() <= LPKeyOffset
		inBody := field.Offset >= BodyOffset && field.End() <= s.ReservedFrom
		if field.Size <= 0 || (!inPadding && !inBody) {
			return fmt.Errorf("schema %s: field %q [%d..%d) outside variant ranges", s.Name, field.Name, field.Offset, field.End())
		}
		for _, header := range headerFields {
			if field.overlaps(header) {
				return fmt.Errorf("schema %s: field %q overlaps header %q", s.Name, field.Name, header.Name)
			}
		}
		for _, other := range s.Fields[:i] {
			if field.overlaps(other) {
				return fmt.Errorf("schema %s: field %q overlaps %q", s.Name, field.Name, other.Name)
			}
		}
	}
	return nil
}

// ZeroBody clears everything after the header, including the reserved tail.
func (s *Schema) ZeroBody(b []byte) {
	clear(b[BodyOffset:Size])
}

func (s *Schema) Field(name string) (FieldDesc, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDesc{}, false
}

// Value is one decoded field, rendered for JSON consumers.
type Value struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Offset int    `json:"offset"`
	Value  any    `json:"value"`
}

// Decode renders the header and every schema field of a record.
func (s *Schema) Decode(b []byte) ([]Value, error) {
	if len(b) < Size {
		return nil, ErrTooSmall
	}
	if Magic.Get(b) != s.Magic {
		return nil, ErrUninitialized
	}

	fields := make([]FieldDesc, 0, len(s.Fields)+5)
	fields = append(fields, ExecPrice.FieldDesc, Magic.FieldDesc, VersionField.FieldDesc, Mode.FieldDesc, LPKey.FieldDesc)
	fields = append(fields, s.Fields...)

	out := make([]Value, 0, len(fields))
	for _, field := range fields {
		out = append(out, Value{
			Name:   field.Name,
			Kind:   field.Kind.String(),
			Offset: field.Offset,
			Value:  decodeField(field, b),
		})
	}
	return out, nil
}

func decodeField(field FieldDesc, b []byte) any {
	switch field.Kind {
	case KindU8:
		return U8Field{field}.Get(b)
	case KindU32:
		return U32Field{field}.Get(b)
	case KindU64:
		return U64Field{field}.Get(b)
	case KindI64:
		return I64Field{field}.Get(b)
	case KindU128:
		return U128Field{field}.Get(b).String()
	case KindPubkey:
		return KeyField{field}.Get(b).String()
	default:
		return hex.EncodeToString(b[field.Offset:field.End()])
	}
}

var registry = struct {
	sync.RWMutex
	byMagic map[uint64]*Schema
	byName  map[string]*Schema
}{
	byMagic: map[uint64]*Schema{},
	byName:  map[string]*Schema{},
}

// MustRegister validates s and adds it to the process-wide registry. It
// panics on an invalid layout or on a name or magic already taken.
func MustRegister(s Schema) *Schema {
	if s.Version == 0 {
		s.Version = Version
	}
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	s.Fields = slices.Clone(s.Fields)
	if err := s.Validate(); err != nil {
		panic(err)
	}

	registry.Lock()
	defer registry.Unlock()
	if existing, ok := registry.byMagic[s.Magic]; ok {
		panic(fmt.Sprintf("ctxrecord: magic %#016x of %s already registered by %s", s.Magic, s.Name, existing.Name))
	}
	if _, ok := registry.byName[s.Name]; ok {
		panic(fmt.Sprintf("ctxrecord: schema %s already registered", s.Name))
	}
	schema := &s
	registry.byMagic[s.Magic] = schema
	registry.byName[s.Name] = schema
	return schema
}

func Lookup(magic uint64) (*Schema, bool) {
	registry.RLock()
	defer registry.RUnlock()
	s, ok := registry.byMagic[magic]
	return s, ok
}

func LookupName(name string) (*Schema, bool) {
	registry.RLock()
	defer registry.RUnlock()
	s, ok := registry.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Identify resolves the schema of a full record by its magic.
func Identify(b []byte) (*Schema, error) {
	if len(b) < Size {
		return nil, ErrTooSmall
	}
	s, ok := Lookup(Magic.Get(b))
	if !ok {
		return nil, ErrUnknownSchema
	}
	return s, nil
}

func Schemas() []*Schema {
	registry.RLock()
	defer registry.RUnlock()
	out := make([]*Schema, 0, len(registry.byName))
	for _, s := range registry.byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MagicBytes is the little-endian encoding of magic as it appears at offset 64,
// used for memcmp filters.
func MagicBytes(magic uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, magic)
	return b
}

// NewRecord returns a zeroed buffer of the protocol size.
func NewRecord() []byte { return make([]byte, Size) }

// BoundLPKey reads the LP key of an initialized record.
func BoundLPKey(b []byte) (solana.PublicKey, error) {
	if len(b) < Size {
		return solana.PublicKey{}, ErrTooSmall
	}
	return LPKey.Get(b), nil
}
