package dialect

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gtu-nova/mavsign/mavlink"
)

//go:embed common.yaml
var commonYAML []byte

// File is the YAML form of a dialect.
type File struct {
	Name     string        `yaml:"name"`
	Messages []MessageSpec `yaml:"messages"`
}

type MessageSpec struct {
	ID   uint32 `yaml:"id"`
	Name string `yaml:"name"`
	// CRCExtra is computed from the layout when omitted and checked
	// against it when given.
	CRCExtra *int        `yaml:"crc_extra,omitempty"`
	Fields   []FieldSpec `yaml:"fields"`
}

type FieldSpec struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Extension bool   `yaml:"extension,omitempty"`
}

// Registry is a set of message definitions addressable by id and name.
// It is safe for concurrent lookups once built.
type Registry struct {
	Name   string
	byID   map[uint32]*mavlink.MessageDefinition
	byName map[string]*mavlink.MessageDefinition
}

func NewRegistry(name string) *Registry {
	return &Registry{
		Name:   name,
		byID:   make(map[uint32]*mavlink.MessageDefinition),
		byName: make(map[string]*mavlink.MessageDefinition),
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the embedded common subset.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Parse(commonYAML)
		if err != nil {
			panic(fmt.Errorf("embedded dialect: %w", err))
		}
		defaultReg = reg
	})
	return defaultReg
}

// Load reads a YAML dialect file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

func Parse(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return FromFile(file)
}

func FromFile(file File) (*Registry, error) {
	reg := NewRegistry(file.Name)
	for i, spec := range file.Messages {
		def, err := spec.Definition()
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		if err := reg.Add(def); err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return reg, nil
}

// Definition converts the YAML entry into a wire-ordered definition.
func (s MessageSpec) Definition() (*mavlink.MessageDefinition, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return nil, fmt.Errorf("message %d has no name", s.ID)
	}
	fields := make([]mavlink.Field, 0, len(s.Fields))
	for _, fs := range s.Fields {
		f, err := parseField(fs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		fields = append(fields, f)
	}
	fields = WireOrder(fields)

	crcExtra := CRCExtra(name, fields)
	if s.CRCExtra != nil {
		if *s.CRCExtra < 0 || *s.CRCExtra > 0xFF {
			return nil, fmt.Errorf("%s: crc_extra %d out of range", name, *s.CRCExtra)
		}
		if byte(*s.CRCExtra) != crcExtra {
			return nil, fmt.Errorf("%s: crc_extra %d does not match layout (%d)", name, *s.CRCExtra, crcExtra)
		}
	}
	return mavlink.NewMessageDefinition(name, s.ID, crcExtra, fields...)
}

func parseField(fs FieldSpec) (mavlink.Field, error) {
	f := mavlink.Field{Name: strings.TrimSpace(fs.Name), Extension: fs.Extension}
	if f.Name == "" {
		return f, fmt.Errorf("field with type %q has no name", fs.Type)
	}
	typ := strings.TrimSpace(fs.Type)
	if i := strings.IndexByte(typ, '['); i >= 0 {
		if !strings.HasSuffix(typ, "]") {
			return f, fmt.Errorf("field %s: bad array type %q", f.Name, fs.Type)
		}
		n, err := strconv.Atoi(typ[i+1 : len(typ)-1])
		if err != nil || n <= 0 {
			return f, fmt.Errorf("field %s: bad array length in %q", f.Name, fs.Type)
		}
		f.ArrayLen = n
		typ = typ[:i]
	}
	t, err := mavlink.ParseFieldType(typ)
	if err != nil {
		return f, fmt.Errorf("field %s: %w", f.Name, err)
	}
	f.Type = t
	return f, nil
}

// WireOrder sorts base fields by element size, largest first, keeping
// declaration order among equals. Extensions follow unsorted.
func WireOrder(fields []mavlink.Field) []mavlink.Field {
	var base, ext []mavlink.Field
	for _, f := range fields {
		if f.Extension {
			ext = append(ext, f)
		} else {
			base = append(base, f)
		}
	}
	sort.SliceStable(base, func(i, j int) bool {
		return base[i].Type.Size() > base[j].Type.Size()
	})
	return append(base, ext...)
}

// CRCExtra derives the crc_extra seed the way mavgen does: the X.25
// accumulator over the message name and each base field's type and name,
// folded to one byte. fields must already be in wire order.
func CRCExtra(name string, fields []mavlink.Field) byte {
	var buf []byte
	buf = append(buf, name+" "...)
	for _, f := range fields {
		if f.Extension {
			continue
		}
		buf = append(buf, f.Type.String()+" "...)
		buf = append(buf, f.Name+" "...)
		if f.ArrayLen > 0 {
			buf = append(buf, byte(f.ArrayLen))
		}
	}
	crc := mavlink.Checksum(buf)
	return byte(crc&0xFF) ^ byte(crc>>8)
}

// Add registers a definition. Ids and names must be unique.
func (r *Registry) Add(def *mavlink.MessageDefinition) error {
	if _, ok := r.byID[def.ID]; ok {
		return fmt.Errorf("duplicate message id %d (%s)", def.ID, def.Name)
	}
	if _, ok := r.byName[nameKey(def.Name)]; ok {
		return fmt.Errorf("duplicate message name %s", def.Name)
	}
	r.byID[def.ID] = def
	r.byName[nameKey(def.Name)] = def
	return nil
}

// Merge returns a registry holding r's messages overlaid by other's.
func (r *Registry) Merge(other *Registry) *Registry {
	out := NewRegistry(r.Name)
	for _, reg := range []*Registry{r, other} {
		if reg == nil {
			continue
		}
		for _, def := range reg.Messages() {
			if old, ok := out.byID[def.ID]; ok {
				delete(out.byName, nameKey(old.Name))
			}
			if old, ok := out.byName[nameKey(def.Name)]; ok {
				delete(out.byID, old.ID)
			}
			out.byID[def.ID] = def
			out.byName[nameKey(def.Name)] = def
		}
	}
	return out
}

func nameKey(name string) string {
	return strings.ToUpper(name)
}

func (r *Registry) Lookup(id uint32) (*mavlink.MessageDefinition, bool) {
	if r == nil {
		return nil, false
	}
	def, ok := r.byID[id]
	return def, ok
}

// ByName finds a message by name, case-insensitively, or by numeric id.
func (r *Registry) ByName(name string) (*mavlink.MessageDefinition, bool) {
	if r == nil {
		return nil, false
	}
	name = strings.TrimSpace(name)
	if def, ok := r.byName[nameKey(name)]; ok {
		return def, true
	}
	if id, err := strconv.ParseUint(name, 10, 32); err == nil {
		return r.Lookup(uint32(id))
	}
	return nil, false
}

// Messages lists definitions ordered by id.
func (r *Registry) Messages() []*mavlink.MessageDefinition {
	if r == nil {
		return nil
	}
	out := make([]*mavlink.MessageDefinition, 0, len(r.byID))
	for _, def := range r.byID {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byID)
}
