package mapping

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// coercer is the pair of conversions for one Kind.
type coercer struct {
	toField   func(b *Binding, raw any, dst reflect.Value) error
	toStorage func(b *Binding, src reflect.Value) (any, error)
}

// coercers is indexed by Kind.
var coercers = [...]coercer{
	KindString:         {stringToField, stringToStorage},
	KindPassthrough:    {passthroughToField, passthroughToStorage},
	KindEnum:           {enumToField, enumToStorage},
	KindJSONCollection: {jsonToField, jsonToStorage},
	KindJSONExplicit:   {jsonToField, jsonToStorage},
	KindBestEffort:     {bestEffortToField, bestEffortToStorage},
}

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// timeLayouts are the textual forms SQLite and the driver produce for
// date/time columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func (b *Binding) coercionError(raw any, err error) error {
	return &CoercionError{Field: b.Field, Column: b.label(), Kind: b.Kind, Value: raw, Err: err}
}

// alloc returns the settable value behind dst, allocating when dst is a pointer.
func alloc(dst reflect.Value) reflect.Value {
	if dst.Kind() != reflect.Ptr {
		return dst
	}
	v := reflect.New(dst.Type().Elem())
	dst.Set(v)
	return v.Elem()
}

func setZero(dst reflect.Value) {
	dst.Set(reflect.Zero(dst.Type()))
}

// isNil reports whether src holds no value at all.
func isNil(src reflect.Value) bool {
	switch src.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return src.IsNil()
	}
	return !src.IsValid()
}

// ---------------- string ----------------

func stringToField(_ *Binding, raw any, dst reflect.Value) error {
	s, ok := emptyToNull(raw)
	if !ok {
		setZero(dst)
		return nil
	}
	alloc(dst).SetString(s)
	return nil
}

func stringToStorage(_ *Binding, src reflect.Value) (any, error) {
	if isNil(src) {
		return nil, nil
	}
	return reflect.Indirect(src).String(), nil
}

// emptyToNull returns the string form of raw and false when raw is NULL or empty.
func emptyToNull(raw any) (string, bool) {
	var s string
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		s = v.Format(time.RFC3339Nano)
	default:
		s = fmt.Sprint(v)
	}
	return s, s != ""
}

// ---------------- passthrough ----------------

func passthroughToField(b *Binding, raw any, dst reflect.Value) error {
	if raw == nil {
		setZero(dst)
		return nil
	}
	if err := assignScalar(alloc(dst), raw); err != nil {
		return b.coercionError(raw, err)
	}
	return nil
}

func passthroughToStorage(_ *Binding, src reflect.Value) (any, error) {
	if isNil(src) {
		return nil, nil
	}
	return scalarToStorage(reflect.Indirect(src))
}

// assignScalar reinterprets raw as the scalar type of target.
func assignScalar(target reflect.Value, raw any) error {
	if target.Type() == timeType {
		t, err := toTime(raw)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(t))
		return nil
	}

	switch target.Kind() {
	case reflect.Bool:
		v, err := toBool(raw)
		if err != nil {
			return err
		}
		target.SetBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := toInt64(raw)
		if err != nil {
			return err
		}
		if target.OverflowInt(v) {
			return fmt.Errorf("value %d overflows %s", v, target.Type())
		}
		target.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := toInt64(raw)
		if err != nil {
			return err
		}
		if v < 0 || target.OverflowUint(uint64(v)) {
			return fmt.Errorf("value %d overflows %s", v, target.Type())
		}
		target.SetUint(uint64(v))
	case reflect.Float32, reflect.Float64:
		v, err := toFloat64(raw)
		if err != nil {
			return err
		}
		if target.OverflowFloat(v) {
			return fmt.Errorf("value %g overflows %s", v, target.Type())
		}
		target.SetFloat(v)
	case reflect.String:
		s, _ := emptyToNull(raw)
		target.SetString(s)
	default:
		return fmt.Errorf("unsupported scalar type %s", target.Type())
	}
	return nil
}

func scalarToStorage(v reflect.Value) (any, error) {
	if v.Type() == timeType {
		return v.Interface().(time.Time).UTC().Format(time.RFC3339Nano), nil
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("mapping: value %d does not fit a 64-bit column", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	}
	return nil, fmt.Errorf("mapping: unsupported scalar type %s", v.Type())
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("%g is not an integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return parseInt(v)
	case []byte:
		return parseInt(string(v))
	}
	return 0, fmt.Errorf("cannot read %T as integer", raw)
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	}
	return 0, fmt.Errorf("cannot read %T as float", raw)
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	}
	return false, fmt.Errorf("cannot read %T as bool", raw)
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	}
	return time.Time{}, fmt.Errorf("cannot read %T as time", raw)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognised time", s)
}

// ---------------- enum ----------------

func enumToField(b *Binding, raw any, dst reflect.Value) error {
	if raw == nil && dst.Kind() == reflect.Ptr {
		setZero(dst)
		return nil
	}
	name, _ := emptyToNull(raw)
	for i, n := range b.enumNames {
		if n == name {
			target := alloc(dst)
			switch target.Kind() {
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				target.SetUint(uint64(i))
			default:
				target.SetInt(int64(i))
			}
			return nil
		}
	}
	return b.coercionError(raw, fmt.Errorf("%q is not one of %v", name, b.enumNames))
}

func enumToStorage(b *Binding, src reflect.Value) (any, error) {
	if isNil(src) {
		return nil, nil
	}
	v := reflect.Indirect(src)
	var ord int64
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		ord = int64(v.Uint())
	default:
		ord = v.Int()
	}
	if ord < 0 || ord >= int64(len(b.enumNames)) {
		return nil, b.coercionError(v.Interface(), fmt.Errorf("ordinal %d has no name", ord))
	}
	return b.enumNames[ord], nil
}

// ---------------- json ----------------

func jsonToField(_ *Binding, raw any, dst reflect.Value) error {
	text, ok := jsonText(raw)
	if !ok {
		setZero(dst)
		return nil
	}
	return decodeJSON(text, dst)
}

func decodeJSON(text []byte, dst reflect.Value) error {
	ptr := reflect.New(dst.Type())
	if err := json.Unmarshal(text, ptr.Interface()); err != nil {
		setZero(dst)
		return &degradedError{err: err}
	}
	dst.Set(ptr.Elem())
	return nil
}

func jsonToStorage(_ *Binding, src reflect.Value) (any, error) {
	if isNil(src) {
		return nil, nil
	}
	data, err := json.Marshal(src.Interface())
	if err != nil {
		return nil, fmt.Errorf("mapping: encode json: %w", err)
	}
	return string(data), nil
}

func jsonText(raw any) ([]byte, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case string:
		return []byte(v), v != ""
	case []byte:
		return v, len(v) > 0
	}
	return []byte(fmt.Sprint(raw)), true
}

// ---------------- best effort ----------------

func bestEffortToField(_ *Binding, raw any, dst reflect.Value) error {
	if raw == nil {
		setZero(dst)
		return nil
	}

	if reflect.PointerTo(dst.Type()).Implements(scannerType) {
		tmp := reflect.New(dst.Type())
		if err := tmp.Interface().(sql.Scanner).Scan(raw); err == nil {
			dst.Set(tmp.Elem())
			return nil
		}
	}

	rv := reflect.ValueOf(raw)
	if convertible(rv, dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}

	if isScalarKind(dst.Kind()) {
		tmp := reflect.New(dst.Type()).Elem()
		if err := assignScalar(tmp, raw); err == nil {
			dst.Set(tmp)
			return nil
		}
	}

	text, ok := jsonText(raw)
	if !ok {
		setZero(dst)
		return nil
	}
	return decodeJSON(text, dst)
}

func bestEffortToStorage(_ *Binding, src reflect.Value) (any, error) {
	if isNil(src) {
		return nil, nil
	}
	if src.Type().Implements(valuerType) {
		return src.Interface().(driver.Valuer).Value()
	}
	v := reflect.Indirect(src)
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return v.Bytes(), nil
	}
	if isScalarKind(v.Kind()) {
		return scalarToStorage(v)
	}
	return jsonToStorage(nil, src)
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertible reports whether converting rv to type to keeps the value's
// meaning. Integer to string conversions produce runes and are rejected. A
// slice converts to an array, or array pointer, only of the same length.
func convertible(rv reflect.Value, to reflect.Type) bool {
	from := rv.Type()
	if from.AssignableTo(to) {
		return true
	}
	if !from.ConvertibleTo(to) {
		return false
	}
	isBytes := func(t reflect.Type) bool {
		return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
	}
	fk, tk := from.Kind(), to.Kind()
	if fk == reflect.Slice {
		arr := to
		if tk == reflect.Ptr {
			arr = to.Elem()
		}
		if arr.Kind() == reflect.Array && rv.Len() != arr.Len() {
			return false
		}
	}
	if tk == reflect.String && fk != reflect.String && !isBytes(from) {
		return false
	}
	if fk == reflect.String && tk != reflect.String && !isBytes(to) {
		return false
	}
	return true
}

// isDegraded reports whether err is an absorbed JSON failure.
func isDegraded(err error) bool {
	var d *degradedError
	return errors.As(err, &d)
}
