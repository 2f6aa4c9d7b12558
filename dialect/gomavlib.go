package dialect

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	gomavdialect "github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/gtu-nova/mavsign/mavlink"
)

// FromMessage derives a definition from a gomavlib message struct, so
// any generated gomavlib dialect can feed the codec. The crc_extra comes
// from gomavlib itself.
func FromMessage(msg message.Message) (*mavlink.MessageDefinition, error) {
	rw, err := message.NewReadWriter(msg)
	if err != nil {
		return nil, err
	}
	rt := reflect.TypeOf(msg)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("message %T is not a struct", msg)
	}

	fields := make([]mavlink.Field, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		f, err := structField(sf)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", rt.Name(), sf.Name, err)
		}
		fields = append(fields, f)
	}

	name := upperSnake(strings.TrimPrefix(rt.Name(), "Message"))
	return mavlink.NewMessageDefinition(name, msg.GetID(), rw.CRCExtra(), WireOrder(fields)...)
}

// FromGomavlib imports every message of a gomavlib dialect.
func FromGomavlib(d *gomavdialect.Dialect) (*Registry, error) {
	reg := NewRegistry(fmt.Sprintf("gomavlib-v%d", d.Version))
	for _, msg := range d.Messages {
		def, err := FromMessage(msg)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func structField(sf reflect.StructField) (mavlink.Field, error) {
	f := mavlink.Field{
		Name:      sf.Tag.Get("mavname"),
		Extension: sf.Tag.Get("mavext") == "true",
	}
	if f.Name == "" {
		f.Name = strings.ToLower(upperSnake(sf.Name))
	}

	t := sf.Type
	switch t.Kind() {
	case reflect.String:
		n, err := strconv.Atoi(sf.Tag.Get("mavlen"))
		if err != nil || n <= 0 {
			return f, fmt.Errorf("string field without mavlen")
		}
		f.Type = mavlink.Char
		f.ArrayLen = n
		return f, nil
	case reflect.Array:
		f.ArrayLen = t.Len()
		t = t.Elem()
	}

	if enum := sf.Tag.Get("mavenum"); enum != "" {
		typ, err := mavlink.ParseFieldType(enum)
		if err != nil {
			return f, err
		}
		f.Type = typ
		return f, nil
	}

	switch t.Kind() {
	case reflect.Int8:
		f.Type = mavlink.Int8
	case reflect.Uint8:
		f.Type = mavlink.Uint8
	case reflect.Int16:
		f.Type = mavlink.Int16
	case reflect.Uint16:
		f.Type = mavlink.Uint16
	case reflect.Int32:
		f.Type = mavlink.Int32
	case reflect.Uint32:
		f.Type = mavlink.Uint32
	case reflect.Int64:
		f.Type = mavlink.Int64
	case reflect.Uint64:
		f.Type = mavlink.Uint64
	case reflect.Float32:
		f.Type = mavlink.Float
	case reflect.Float64:
		f.Type = mavlink.Double
	default:
		return f, fmt.Errorf("unsupported kind %s", t.Kind())
	}
	return f, nil
}

// upperSnake turns Go identifiers into MAVLink names: GpsInput -> GPS_INPUT.
func upperSnake(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			sb.WriteByte('_')
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}
