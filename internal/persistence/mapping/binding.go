package mapping

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind selects how a column value is coerced into a field and back.
type Kind uint8

const (
	KindString         Kind = iota // string, *string; empty reads as absent
	KindPassthrough                // numbers, bool, time.Time
	KindEnum                       // integer types implementing Enum
	KindJSONCollection             // slices (except []byte) and maps
	KindJSONExplicit               // fields tagged with the json option
	KindBestEffort                 // anything else
)

var kindNames = [...]string{
	KindString:         "string",
	KindPassthrough:    "passthrough",
	KindEnum:           "enum",
	KindJSONCollection: "json-collection",
	KindJSONExplicit:   "json-explicit",
	KindBestEffort:     "best-effort",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Enum is implemented by integer types whose stored form is a name.
// The ordinal of a value is its index in EnumNames.
type Enum interface {
	EnumNames() []string
}

var (
	timeType = reflect.TypeOf(time.Time{})
	enumType = reflect.TypeOf((*Enum)(nil)).Elem()
)

// passthroughTypes is the fixed allow-list for KindPassthrough.
var passthroughTypes = map[reflect.Type]bool{
	reflect.TypeOf(int(0)):     true,
	reflect.TypeOf(int8(0)):    true,
	reflect.TypeOf(int16(0)):   true,
	reflect.TypeOf(int32(0)):   true,
	reflect.TypeOf(int64(0)):   true,
	reflect.TypeOf(uint(0)):    true,
	reflect.TypeOf(uint8(0)):   true,
	reflect.TypeOf(uint16(0)):  true,
	reflect.TypeOf(uint32(0)):  true,
	reflect.TypeOf(uint64(0)):  true,
	reflect.TypeOf(float32(0)): true,
	reflect.TypeOf(float64(0)): true,
	reflect.TypeOf(false):      true,
	timeType:                   true,
}

// Binding maps one column onto one struct field. Bindings are immutable
// once built and shared by every reader of the record type.
type Binding struct {
	Column  string       // column name; also the named parameter on writes
	Ordinal int          // column position, or -1 to address by name
	Kind    Kind         // coercion strategy
	Field   string       // Go field name
	Type    reflect.Type // declared field type

	index     []int
	enumNames []string
}

// ByOrdinal reports whether the binding reads its column by position.
func (b *Binding) ByOrdinal() bool {
	return b.Ordinal >= 0
}

// label names the column for error messages.
func (b *Binding) label() string {
	if b.ByOrdinal() {
		return "#" + strconv.Itoa(b.Ordinal)
	}
	return strconv.Quote(b.Column)
}

// ToField coerces a raw driver value into dst, which must be the bound field.
func (b *Binding) ToField(raw any, dst reflect.Value) error {
	return coercers[b.Kind].toField(b, raw, dst)
}

// ToStorage converts the bound field value into a driver value.
func (b *Binding) ToStorage(src reflect.Value) (any, error) {
	return coercers[b.Kind].toStorage(b, src)
}

// Registry builds and caches bindings per record type. The zero value is
// not usable; use NewRegistry. A Registry lives for the whole process and
// is never invalidated.
type Registry struct {
	bindings sync.Map // reflect.Type -> []Binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// For returns the bindings of rt, building them on first use. Pointer types
// are dereferenced. The returned slice is shared and must not be modified.
func (r *Registry) For(rt reflect.Type) ([]Binding, error) {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if v, ok := r.bindings.Load(rt); ok {
		return v.([]Binding), nil
	}

	built, err := buildBindings(rt)
	if err != nil {
		return nil, err
	}
	// Concurrent builders produce identical lists; keep whichever landed first.
	actual, _ := r.bindings.LoadOrStore(rt, built)
	return actual.([]Binding), nil
}

// BindingsFor is the generic form of Registry.For.
func BindingsFor[T any](r *Registry) ([]Binding, error) {
	return r.For(reflect.TypeOf((*T)(nil)).Elem())
}

func buildBindings(rt reflect.Type) ([]Binding, error) {
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, rt)
	}

	var out []Binding
	var walk func(t reflect.Type, base []int) error
	walk = func(t reflect.Type, base []int) error {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			tag, tagged := sf.Tag.Lookup("sql")
			if tag == "-" {
				continue
			}
			path := append(append([]int(nil), base...), i)

			// Untagged embedded structs are flattened.
			if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct {
				if err := walk(sf.Type, path); err != nil {
					return err
				}
				continue
			}
			if !tagged || !sf.IsExported() {
				continue
			}

			specs, err := parseTag(tag, sf.Name)
			if err != nil {
				return &TagError{Type: rt, Field: sf.Name, Tag: tag, Err: err}
			}
			for _, s := range specs {
				b := Binding{
					Column:  s.column,
					Ordinal: s.ordinal,
					Kind:    classify(sf.Type, s.json),
					Field:   sf.Name,
					Type:    sf.Type,
					index:   path,
				}
				if b.Kind == KindEnum {
					b.enumNames = enumNamesOf(sf.Type)
				}
				out = append(out, b)
			}
		}
		return nil
	}
	if err := walk(rt, nil); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := out[i].Ordinal, out[j].Ordinal
		if (oi < 0) != (oj < 0) {
			return oi >= 0
		}
		return oi < oj
	})
	return out, nil
}

type tagSpec struct {
	column  string
	ordinal int
	json    bool
}

// parseTag supports "col", "col,ord=2", "col,json", and several bindings
// separated by ";". An empty column name defaults to the field name.
func parseTag(tag, fieldName string) ([]tagSpec, error) {
	var specs []tagSpec
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items := strings.Split(part, ",")
		s := tagSpec{column: strings.TrimSpace(items[0]), ordinal: -1}
		for _, opt := range items[1:] {
			opt = strings.TrimSpace(opt)
			switch {
			case opt == "":
			case opt == "json":
				s.json = true
			case strings.HasPrefix(opt, "ord="):
				n, err := strconv.Atoi(strings.TrimPrefix(opt, "ord="))
				if err != nil || n < 0 {
					return nil, fmt.Errorf("ordinal %q must be a non-negative integer", opt)
				}
				s.ordinal = n
			default:
				return nil, fmt.Errorf("unknown option %q", opt)
			}
		}
		if s.column == "" {
			s.column = fieldName
		}
		specs = append(specs, s)
	}
	if len(specs) == 0 {
		specs = append(specs, tagSpec{column: fieldName, ordinal: -1})
	}
	return specs, nil
}

// classify picks the coercion kind for a field type. Order matters: an
// explicit json option does not override string, passthrough or enum.
func classify(t reflect.Type, json bool) Kind {
	base := t
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	switch {
	case base == reflect.TypeOf(""):
		return KindString
	case passthroughTypes[base]:
		return KindPassthrough
	case isEnum(base):
		return KindEnum
	case base.Kind() == reflect.Map,
		base.Kind() == reflect.Slice && base.Elem().Kind() != reflect.Uint8:
		return KindJSONCollection
	case json:
		return KindJSONExplicit
	default:
		return KindBestEffort
	}
}

func isEnum(t reflect.Type) bool {
	if !t.Implements(enumType) {
		return false
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func enumNamesOf(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	names := reflect.Zero(t).Interface().(Enum).EnumNames()
	return append([]string(nil), names...)
}
