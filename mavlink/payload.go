package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Message is a payload bound to its definition. The payload is packed
// and zero-truncated when the message is built, so a Message that exists
// is always encodable.
type Message struct {
	Def     *MessageDefinition
	payload []byte
}

// NewMessage packs values, given in the definition's field order, and
// applies trailing zero truncation.
func NewMessage(def *MessageDefinition, values ...interface{}) (*Message, error) {
	buf, err := Pack(def, values...)
	if err != nil {
		return nil, err
	}
	return &Message{Def: def, payload: Truncate(buf)}, nil
}

// Payload returns the truncated payload bytes.
func (m *Message) Payload() []byte {
	return m.payload
}

// Values unpacks the payload back into typed values.
func (m *Message) Values() ([]interface{}, error) {
	return Unpack(m.Def, m.payload)
}

// Pack writes every field little-endian into a buffer of def.Size()
// bytes. The result is not truncated. Definitions that could not be
// framed are rejected with ErrBadDefinition.
func Pack(def *MessageDefinition, values ...interface{}) ([]byte, error) {
	if def == nil {
		return nil, fmt.Errorf("nil definition: %w", ErrBadDefinition)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrBadDefinition)
	}
	if len(values) != len(def.Fields) {
		return nil, fmt.Errorf("message %s takes %d values, got %d: %w",
			def.Name, len(def.Fields), len(values), ErrFieldCountMismatch)
	}
	buf := make([]byte, def.Size())
	pos := 0
	for i, f := range def.Fields {
		if err := packField(buf[pos:pos+f.Size()], f, values[i]); err != nil {
			return nil, fmt.Errorf("message %s field %s: %w", def.Name, f.Name, err)
		}
		pos += f.Size()
	}
	return buf, nil
}

// Truncate strips trailing zero bytes, never going below one byte.
func Truncate(payload []byte) []byte {
	n := len(payload)
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	return payload[:n]
}

func packField(b []byte, f Field, v interface{}) error {
	if f.ArrayLen == 0 {
		return packScalar(b, f.Type, v)
	}
	if s, ok := v.(string); ok && f.Type.Size() == 1 {
		if len(s) > f.ArrayLen {
			return fmt.Errorf("string of %d bytes does not fit %d: %w", len(s), f.ArrayLen, ErrFieldRange)
		}
		copy(b, s)
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("array field needs a slice, got %T: %w", v, ErrFieldRange)
	}
	if rv.Len() > f.ArrayLen {
		return fmt.Errorf("%d elements do not fit %d: %w", rv.Len(), f.ArrayLen, ErrFieldRange)
	}
	size := f.Type.Size()
	for i := 0; i < rv.Len(); i++ {
		if err := packScalar(b[i*size:(i+1)*size], f.Type, rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type number struct {
	kind reflect.Kind // reflect.Int64, reflect.Uint64 or reflect.Float64
	i    int64
	u    uint64
	f    float64
}

func toNumber(v interface{}) (number, error) {
	if s, ok := v.(string); ok && len(s) == 1 {
		return number{kind: reflect.Uint64, u: uint64(s[0])}, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: reflect.Int64, i: rv.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: reflect.Uint64, u: rv.Uint()}, nil
	case reflect.Float32, reflect.Float64:
		return number{kind: reflect.Float64, f: rv.Float()}, nil
	case reflect.Bool:
		if rv.Bool() {
			return number{kind: reflect.Uint64, u: 1}, nil
		}
		return number{kind: reflect.Uint64}, nil
	}
	return number{}, fmt.Errorf("unsupported value type %T: %w", v, ErrFieldRange)
}

// integral converts an integral float to an integer number.
func (n number) integral() (number, bool) {
	if n.kind != reflect.Float64 {
		return n, true
	}
	f := n.f
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return n, false
	}
	if f < 0 {
		if f < math.MinInt64 {
			return n, false
		}
		return number{kind: reflect.Int64, i: int64(f)}, true
	}
	if f >= 1<<64 {
		return n, false
	}
	return number{kind: reflect.Uint64, u: uint64(f)}, true
}

func (n number) asFloat() float64 {
	switch n.kind {
	case reflect.Int64:
		return float64(n.i)
	case reflect.Uint64:
		return float64(n.u)
	}
	return n.f
}

func packScalar(b []byte, t FieldType, v interface{}) error {
	n, err := toNumber(v)
	if err != nil {
		return err
	}
	switch t {
	case Float:
		f := n.asFloat()
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return fmt.Errorf("%v overflows float: %w", v, ErrFieldRange)
		}
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		return nil
	case Double:
		binary.LittleEndian.PutUint64(b, math.Float64bits(n.asFloat()))
		return nil
	}

	n, ok := n.integral()
	if !ok {
		return fmt.Errorf("%v is not an integer: %w", v, ErrFieldRange)
	}
	bits := uint(8 * t.Size())
	var raw uint64
	if t.signed() {
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		switch {
		case n.kind == reflect.Int64 && n.i >= lo && n.i <= hi:
			raw = uint64(n.i)
		case n.kind == reflect.Uint64 && n.u <= uint64(hi):
			raw = n.u
		default:
			return fmt.Errorf("%v does not fit %s: %w", v, t, ErrFieldRange)
		}
	} else {
		hi := uint64(math.MaxUint64) >> (64 - bits)
		switch {
		case n.kind == reflect.Int64 && n.i >= 0 && uint64(n.i) <= hi:
			raw = uint64(n.i)
		case n.kind == reflect.Uint64 && n.u <= hi:
			raw = n.u
		default:
			return fmt.Errorf("%v does not fit %s: %w", v, t, ErrFieldRange)
		}
	}
	for i := 0; i < t.Size(); i++ {
		b[i] = byte(raw >> (8 * i))
	}
	return nil
}

// Unpack decodes a (possibly truncated) payload. Missing trailing bytes
// read as zero and bytes beyond the known fields are ignored.
func Unpack(def *MessageDefinition, payload []byte) ([]interface{}, error) {
	buf := make([]byte, def.Size())
	copy(buf, payload)
	values := make([]interface{}, len(def.Fields))
	pos := 0
	for i, f := range def.Fields {
		values[i] = unpackField(buf[pos:pos+f.Size()], f)
		pos += f.Size()
	}
	return values, nil
}

func unpackField(b []byte, f Field) interface{} {
	if f.ArrayLen == 0 {
		return unpackScalar(b, f.Type)
	}
	if f.Type == Char {
		if i := strings.IndexByte(string(b), 0); i >= 0 {
			return string(b[:i])
		}
		return string(b)
	}
	size := f.Type.Size()
	first := reflect.ValueOf(unpackScalar(b[:size], f.Type))
	out := reflect.MakeSlice(reflect.SliceOf(first.Type()), f.ArrayLen, f.ArrayLen)
	for i := 0; i < f.ArrayLen; i++ {
		out.Index(i).Set(reflect.ValueOf(unpackScalar(b[i*size:(i+1)*size], f.Type)))
	}
	return out.Interface()
}

func unpackScalar(b []byte, t FieldType) interface{} {
	switch t {
	case Char, Uint8:
		return b[0]
	case Int8:
		return int8(b[0])
	case Uint16:
		return binary.LittleEndian.Uint16(b)
	case Int16:
		return int16(binary.LittleEndian.Uint16(b))
	case Uint32:
		return binary.LittleEndian.Uint32(b)
	case Int32:
		return int32(binary.LittleEndian.Uint32(b))
	case Uint64:
		return binary.LittleEndian.Uint64(b)
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	case Float:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case Double:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return nil
}
