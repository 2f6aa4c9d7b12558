package mavlink

import (
	"fmt"
	"strings"
)

// FieldType is a MAVLink primitive wire type.
type FieldType uint8

const (
	Char FieldType = iota + 1
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float
	Double
)

var fieldTypeNames = map[FieldType]string{
	Char:   "char",
	Int8:   "int8_t",
	Uint8:  "uint8_t",
	Int16:  "int16_t",
	Uint16: "uint16_t",
	Int32:  "int32_t",
	Uint32: "uint32_t",
	Int64:  "int64_t",
	Uint64: "uint64_t",
	Float:  "float",
	Double: "double",
}

// Size is the width of one element on the wire.
func (t FieldType) Size() int {
	switch t {
	case Char, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float:
		return 4
	case Int64, Uint64, Double:
		return 8
	}
	return 0
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

func (t FieldType) signed() bool {
	return t == Int8 || t == Int16 || t == Int32 || t == Int64
}

func (t FieldType) float() bool {
	return t == Float || t == Double
}

// ParseFieldType accepts MAVLink XML names ("uint16_t", "float") as well
// as Go-ish and struct-format spellings ("uint16", "float32", "H").
func ParseFieldType(s string) (FieldType, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "uint8_t_mavlink_version":
		return Uint8, nil
	case "c":
		return Char, nil
	case "b":
		return Int8, nil
	case "B":
		return Uint8, nil
	case "h":
		return Int16, nil
	case "H":
		return Uint16, nil
	case "i":
		return Int32, nil
	case "I":
		return Uint32, nil
	case "q":
		return Int64, nil
	case "Q":
		return Uint64, nil
	case "f", "float32":
		return Float, nil
	case "d", "float64":
		return Double, nil
	}
	name := strings.ToLower(s)
	for t, n := range fieldTypeNames {
		if name == n || name+"_t" == n {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// Field is one entry of a message layout.
type Field struct {
	Name string
	Type FieldType
	// ArrayLen is zero for scalars.
	ArrayLen  int
	Extension bool
}

func (f Field) Size() int {
	if f.ArrayLen > 0 {
		return f.Type.Size() * f.ArrayLen
	}
	return f.Type.Size()
}

func (f Field) String() string {
	if f.ArrayLen > 0 {
		return fmt.Sprintf("%s %s[%d]", f.Type, f.Name, f.ArrayLen)
	}
	return fmt.Sprintf("%s %s", f.Type, f.Name)
}

// MessageDefinition describes the payload layout of one message. Fields
// are held in wire order. Definitions are shared between goroutines and
// must not be modified once built.
type MessageDefinition struct {
	ID       uint32
	Name     string
	CRCExtra byte
	Fields   []Field
}

// NewMessageDefinition validates a layout given in wire order.
func NewMessageDefinition(name string, id uint32, crcExtra byte, fields ...Field) (*MessageDefinition, error) {
	def := &MessageDefinition{
		ID:       id,
		Name:     name,
		CRCExtra: crcExtra,
		Fields:   append([]Field(nil), fields...),
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *MessageDefinition) Validate() error {
	if d.ID > MaxMessageID {
		return fmt.Errorf("message %s: id %d does not fit 24 bits", d.Name, d.ID)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("message %s: no fields", d.Name)
	}
	seen := make(map[string]bool, len(d.Fields))
	for i, f := range d.Fields {
		if f.Type.Size() == 0 {
			return fmt.Errorf("message %s: field %d (%s) has no type", d.Name, i, f.Name)
		}
		if f.ArrayLen < 0 {
			return fmt.Errorf("message %s: field %s has negative length", d.Name, f.Name)
		}
		if f.Name != "" {
			if seen[f.Name] {
				return fmt.Errorf("message %s: duplicate field %s", d.Name, f.Name)
			}
			seen[f.Name] = true
		}
	}
	if size := d.Size(); size > MaxPayloadLen {
		return fmt.Errorf("message %s: payload of %d bytes exceeds %d", d.Name, size, MaxPayloadLen)
	}
	return nil
}

// Size is the untruncated payload width.
func (d *MessageDefinition) Size() int {
	n := 0
	for _, f := range d.Fields {
		n += f.Size()
	}
	return n
}

// FieldIndex returns the position of the named field, or -1.
func (d *MessageDefinition) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Format renders the layout as a struct format string, e.g. "<fffffffHBBB".
func (d *MessageDefinition) Format() string {
	var sb strings.Builder
	sb.WriteByte('<')
	for _, f := range d.Fields {
		c := formatChars[f.Type]
		if f.ArrayLen > 0 {
			fmt.Fprintf(&sb, "%d", f.ArrayLen)
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

var formatChars = map[FieldType]byte{
	Char: 'c', Int8: 'b', Uint8: 'B', Int16: 'h', Uint16: 'H',
	Int32: 'i', Uint32: 'I', Int64: 'q', Uint64: 'Q', Float: 'f', Double: 'd',
}

// Dialect supplies message definitions by id.
type Dialect interface {
	Lookup(id uint32) (*MessageDefinition, bool)
}
