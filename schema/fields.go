package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/jsonpointer"
)

// intFromWire extracts an integral value from a decoded JSON value.
func intFromWire(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) || v != math.Trunc(v) {
			return 0, false
		}
		if v < math.MinInt64 || v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// floatFromWire extracts a numeric value from a decoded JSON value.
func floatFromWire(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	}
	return 0, false
}

// checkBounds enforces inclusive numeric bounds.
func checkBounds(v float64, min, max *float64, sp jsonpointer.Pointer) error {
	if min != nil && v < *min {
		return apierror.InvalidValue(fmt.Sprintf("Must be >= %v.", *min), sp)
	}
	if max != nil && v > *max {
		return apierror.InvalidValue(fmt.Sprintf("Must be <= %v.", *max), sp)
	}
	return nil
}

// String is a string attribute with optional pattern and length
// constraints.
type String struct {
	fieldState
	pattern   *regexp.Regexp
	minLength int
	maxLength *int
}

// NewString returns a string attribute field.
func NewString(key string, opts ...Option) *String {
	f := &String{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *String) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *String) check(v string, sp jsonpointer.Pointer) error {
	n := utf8.RuneCountInString(v)
	if n < f.minLength {
		return apierror.InvalidValue(fmt.Sprintf("Must be at least %d characters long.", f.minLength), sp)
	}
	if f.maxLength != nil && n > *f.maxLength {
		return apierror.InvalidValue(fmt.Sprintf("Must be at most %d characters long.", *f.maxLength), sp)
	}
	if f.pattern != nil && !f.pattern.MatchString(v) {
		return apierror.InvalidValue("Must match the pattern '"+f.pattern.String()+"'.", sp)
	}
	return nil
}

func (f *String) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := raw.(string)
	if !ok {
		return apierror.InvalidType("Must be a string.", sp)
	}
	if err := f.check(v, sp); err != nil {
		return err
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *String) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, apierror.InvalidType("Must be a string.", sp)
	}
	return v, nil
}

func (f *String) Encode(s *Schema, value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return nil, apierror.Configuration("field %q: cannot encode %T as a string", f.key, value)
}

func (f *String) decodeIDString(s *Schema, value string, sp jsonpointer.Pointer) (any, error) {
	if err := f.check(value, sp); err != nil {
		return nil, err
	}
	return value, nil
}

func (f *String) encodeIDString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", apierror.Configuration("field %q: cannot encode %T as an id string", f.key, value)
}

// Integer is an integral number attribute. Wire values must be JSON
// numbers without a fractional part.
type Integer struct {
	fieldState
	min *float64
	max *float64
}

// NewInteger returns an integer attribute field. Decoded values are
// int64.
func NewInteger(key string, opts ...Option) *Integer {
	f := &Integer{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *Integer) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *Integer) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	n, ok := intFromWire(raw)
	if !ok {
		return apierror.InvalidType("Must be an integer.", sp)
	}
	if err := checkBounds(float64(n), f.min, f.max, sp); err != nil {
		return err
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *Integer) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	n, ok := intFromWire(raw)
	if !ok {
		return nil, apierror.InvalidType("Must be an integer.", sp)
	}
	return n, nil
}

func (f *Integer) Encode(s *Schema, value any) (any, error) {
	n, err := f.toInt64(value)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (f *Integer) toInt64(value any) (int64, error) {
	if value == nil {
		return 0, apierror.Configuration("field %q: cannot encode nil as an integer", f.key)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, apierror.Configuration("field %q: %d overflows int64", f.key, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		v := rv.Float()
		if v != math.Trunc(v) {
			return 0, apierror.Configuration("field %q: cannot encode %v as an integer", f.key, v)
		}
		return int64(v), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return 0, apierror.Configuration("field %q: cannot encode nil as an integer", f.key)
		}
		return f.toInt64(rv.Elem().Interface())
	}
	return 0, apierror.Configuration("field %q: cannot encode %T as an integer", f.key, value)
}

func (f *Integer) decodeIDString(s *Schema, value string, sp jsonpointer.Pointer) (any, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, apierror.InvalidValue("Must be an integer in string form.", sp)
	}
	if err := checkBounds(float64(n), f.min, f.max, sp); err != nil {
		return nil, err
	}
	return n, nil
}

func (f *Integer) encodeIDString(value any) (string, error) {
	n, err := f.toInt64(value)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// Float is a floating point number attribute.
type Float struct {
	fieldState
	min *float64
	max *float64
}

// NewFloat returns a float attribute field. Decoded values are
// float64.
func NewFloat(key string, opts ...Option) *Float {
	f := &Float{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *Float) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *Float) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := floatFromWire(raw)
	if !ok {
		return apierror.InvalidType("Must be a number.", sp)
	}
	if err := checkBounds(v, f.min, f.max, sp); err != nil {
		return err
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *Float) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := floatFromWire(raw)
	if !ok {
		return nil, apierror.InvalidType("Must be a number.", sp)
	}
	return v, nil
}

func (f *Float) Encode(s *Schema, value any) (any, error) {
	if value == nil {
		return nil, apierror.Configuration("field %q: cannot encode nil as a number", f.key)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Pointer:
		if !rv.IsNil() {
			return f.Encode(s, rv.Elem().Interface())
		}
	}
	return nil, apierror.Configuration("field %q: cannot encode %T as a number", f.key, value)
}

// Boolean is a true/false attribute. Wire values must be JSON
// booleans; no truthiness coercion happens.
type Boolean struct {
	fieldState
}

// NewBoolean returns a boolean attribute field.
func NewBoolean(key string, opts ...Option) *Boolean {
	f := &Boolean{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *Boolean) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *Boolean) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	if _, ok := raw.(bool); !ok {
		return apierror.InvalidType("Must be a boolean.", sp)
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *Boolean) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := raw.(bool)
	if !ok {
		return nil, apierror.InvalidType("Must be a boolean.", sp)
	}
	return v, nil
}

func (f *Boolean) Encode(s *Schema, value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case *bool:
		if v != nil {
			return *v, nil
		}
	}
	return nil, apierror.Configuration("field %q: cannot encode %T as a boolean", f.key, value)
}

// DateTime is a timestamp attribute carried as an RFC 3339 string, or
// as a plain calendar date with the DateOnly option.
type DateTime struct {
	fieldState
	dateOnly bool
}

// NewDateTime returns a timestamp attribute field. Decoded values are
// time.Time.
func NewDateTime(key string, opts ...Option) *DateTime {
	f := &DateTime{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *DateTime) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *DateTime) parse(v string) (time.Time, error) {
	if f.dateOnly {
		return time.Parse(time.DateOnly, v)
	}
	return time.Parse(time.RFC3339, v)
}

func (f *DateTime) typeError(sp jsonpointer.Pointer) *apierror.Error {
	if f.dateOnly {
		return apierror.InvalidValue("Must be a date in '2006-01-02' form.", sp)
	}
	return apierror.InvalidValue("Must be an RFC 3339 timestamp.", sp)
}

func (f *DateTime) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := raw.(string)
	if !ok {
		return apierror.InvalidType("Must be a string.", sp)
	}
	if _, err := f.parse(v); err != nil {
		return f.typeError(sp)
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *DateTime) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, apierror.InvalidType("Must be a string.", sp)
	}
	t, err := f.parse(v)
	if err != nil {
		return nil, f.typeError(sp)
	}
	return t, nil
}

func (f *DateTime) Encode(s *Schema, value any) (any, error) {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return nil, apierror.Configuration("field %q: cannot encode nil as a timestamp", f.key)
		}
		t = *v
	default:
		return nil, apierror.Configuration("field %q: cannot encode %T as a timestamp", f.key, value)
	}
	if f.dateOnly {
		return t.Format(time.DateOnly), nil
	}
	return t.Format(time.RFC3339Nano), nil
}

// Duration is a time span attribute carried as a number of seconds.
type Duration struct {
	fieldState
	min *float64
	max *float64
}

// NewDuration returns a duration attribute field. Decoded values are
// time.Duration; Min and Max bounds are in seconds.
func NewDuration(key string, opts ...Option) *Duration {
	f := &Duration{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *Duration) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *Duration) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := floatFromWire(raw)
	if !ok {
		return apierror.InvalidType("Must be a number of seconds.", sp)
	}
	if err := checkBounds(v, f.min, f.max, sp); err != nil {
		return err
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *Duration) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := floatFromWire(raw)
	if !ok {
		return nil, apierror.InvalidType("Must be a number of seconds.", sp)
	}
	return time.Duration(v * float64(time.Second)), nil
}

func (f *Duration) Encode(s *Schema, value any) (any, error) {
	switch v := value.(type) {
	case time.Duration:
		return v.Seconds(), nil
	case *time.Duration:
		if v != nil {
			return v.Seconds(), nil
		}
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	}
	return nil, apierror.Configuration("field %q: cannot encode %T as a duration", f.key, value)
}

// UUID is a UUID attribute carried as its canonical string form,
// validated and parsed with github.com/google/uuid.
type UUID struct {
	fieldState
	version int
}

// NewUUID returns a UUID attribute field. Decoded values are
// uuid.UUID.
func NewUUID(key string, opts ...Option) *UUID {
	f := &UUID{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *UUID) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *UUID) parse(v string, sp jsonpointer.Pointer) (uuid.UUID, error) {
	u, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, apierror.InvalidValue("Must be a valid UUID.", sp)
	}
	if f.version != 0 && int(u.Version()) != f.version {
		return uuid.Nil, apierror.InvalidValue(fmt.Sprintf("Must be a version %d UUID.", f.version), sp)
	}
	return u, nil
}

func (f *UUID) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := raw.(string)
	if !ok {
		return apierror.InvalidType("Must be a string.", sp)
	}
	if _, err := f.parse(v, sp); err != nil {
		return err
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *UUID) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, apierror.InvalidType("Must be a string.", sp)
	}
	return f.parse(v, sp)
}

func (f *UUID) Encode(s *Schema, value any) (any, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v.String(), nil
	case *uuid.UUID:
		if v != nil {
			return v.String(), nil
		}
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return nil, apierror.Configuration("field %q: cannot encode %q as a UUID", f.key, v)
		}
		return u.String(), nil
	}
	return nil, apierror.Configuration("field %q: cannot encode %T as a UUID", f.key, value)
}

func (f *UUID) decodeIDString(s *Schema, value string, sp jsonpointer.Pointer) (any, error) {
	return f.parse(value, sp)
}

func (f *UUID) encodeIDString(value any) (string, error) {
	v, err := f.Encode(nil, value)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Decimal is an arbitrary precision decimal attribute carried as a
// string, backed by github.com/cockroachdb/apd.
type Decimal struct {
	fieldState
	min *apd.Decimal
	max *apd.Decimal
}

// NewDecimal returns a decimal attribute field. Decoded values are
// *apd.Decimal.
func NewDecimal(key string, opts ...Option) *Decimal {
	f := &Decimal{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *Decimal) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

// setBound parses a bound given as a decimal string. Invalid bounds
// surface as configuration errors at schema build time.
func (f *Decimal) setBound(target **apd.Decimal, v string) {
	d, _, err := apd.NewFromString(v)
	if err != nil {
		f.fail(apierror.Configuration("field %q: invalid decimal bound %q", f.key, v))
		return
	}
	*target = d
}

func (f *Decimal) parse(v string, sp jsonpointer.Pointer) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(v)
	if err != nil {
		return nil, apierror.InvalidValue("Must be a decimal number in string form.", sp)
	}
	if d.Form != apd.Finite {
		return nil, apierror.InvalidValue("Must be a finite decimal number.", sp)
	}
	if f.min != nil && d.Cmp(f.min) < 0 {
		return nil, apierror.InvalidValue("Must be >= "+f.min.String()+".", sp)
	}
	if f.max != nil && d.Cmp(f.max) > 0 {
		return nil, apierror.InvalidValue("Must be <= "+f.max.String()+".", sp)
	}
	return d, nil
}

func (f *Decimal) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := raw.(string)
	if !ok {
		return apierror.InvalidType("Must be a decimal number in string form.", sp)
	}
	if _, err := f.parse(v, sp); err != nil {
		return err
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *Decimal) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, apierror.InvalidType("Must be a decimal number in string form.", sp)
	}
	return f.parse(v, sp)
}

func (f *Decimal) Encode(s *Schema, value any) (any, error) {
	switch v := value.(type) {
	case *apd.Decimal:
		if v != nil {
			return v.String(), nil
		}
	case apd.Decimal:
		return v.String(), nil
	case string:
		if _, _, err := apd.NewFromString(v); err != nil {
			return nil, apierror.Configuration("field %q: cannot encode %q as a decimal", f.key, v)
		}
		return v, nil
	}
	return nil, apierror.Configuration("field %q: cannot encode %T as a decimal", f.key, value)
}

// URI is an absolute URI attribute carried as a string.
type URI struct {
	fieldState
}

// NewURI returns a URI attribute field. Decoded values are *url.URL.
func NewURI(key string, opts ...Option) *URI {
	f := &URI{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *URI) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *URI) parse(v string, sp jsonpointer.Pointer) (*url.URL, error) {
	u, err := url.Parse(v)
	if err != nil {
		return nil, apierror.InvalidValue("Must be a valid URI.", sp)
	}
	if !u.IsAbs() {
		return nil, apierror.InvalidValue("Must be an absolute URI.", sp)
	}
	return u, nil
}

func (f *URI) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := raw.(string)
	if !ok {
		return apierror.InvalidType("Must be a string.", sp)
	}
	if _, err := f.parse(v, sp); err != nil {
		return err
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *URI) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, apierror.InvalidType("Must be a string.", sp)
	}
	return f.parse(v, sp)
}

func (f *URI) Encode(s *Schema, value any) (any, error) {
	switch v := value.(type) {
	case *url.URL:
		if v != nil {
			return v.String(), nil
		}
	case url.URL:
		return v.String(), nil
	case string:
		return v, nil
	}
	return nil, apierror.Configuration("field %q: cannot encode %T as a URI", f.key, value)
}

// emailPattern is deliberately loose; it rejects obvious garbage
// without attempting full RFC 5322 conformance.
var emailPattern = regexp.MustCompile(`\A[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+\z`)

// Email is a string attribute restricted to email address form.
type Email struct {
	fieldState
}

// NewEmail returns an email attribute field. Decoded values are
// strings.
func NewEmail(key string, opts ...Option) *Email {
	f := &Email{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *Email) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *Email) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	v, ok := raw.(string)
	if !ok {
		return apierror.InvalidType("Must be a string.", sp)
	}
	if !emailPattern.MatchString(v) {
		return apierror.InvalidValue("Must be a valid email address.", sp)
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *Email) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, apierror.InvalidType("Must be a string.", sp)
	}
	if !emailPattern.MatchString(v) {
		return nil, apierror.InvalidValue("Must be a valid email address.", sp)
	}
	return v, nil
}

func (f *Email) Encode(s *Schema, value any) (any, error) {
	v, ok := value.(string)
	if !ok {
		return nil, apierror.Configuration("field %q: cannot encode %T as an email address", f.key, value)
	}
	return v, nil
}

// Dict is an object attribute whose member values all share one
// element field. Validation and decoding recurse into the members,
// extending the source pointer with the member name.
type Dict struct {
	fieldState
	elem Field
}

// NewDict returns an object attribute field. elem describes the member
// values; its key and accessors are unused.
func NewDict(key string, elem Field, opts ...Option) *Dict {
	f := &Dict{fieldState: fieldState{key: key, writable: Always}, elem: elem}
	applyOptions(f, opts)
	return f
}

func (f *Dict) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	if f.elem != nil {
		c.elem = f.elem.clone()
	}
	return &c
}

func (f *Dict) finish(s *Schema) error {
	if err := f.fieldState.finish(s); err != nil {
		return err
	}
	if f.elem == nil {
		return apierror.Configuration("field %q has no element field", f.key)
	}
	return f.elem.state().optionErr
}

func (f *Dict) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return apierror.InvalidType("Must be an object.", sp)
	}
	for _, k := range sortedKeys(m) {
		if err := f.elem.ValidatePreDecode(s, m[k], sp.Child(k), op); err != nil {
			return err
		}
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *Dict) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be an object.", sp)
	}
	out := make(map[string]any, len(m))
	for _, k := range sortedKeys(m) {
		v, err := f.elem.Decode(s, m[k], sp.Child(k))
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (f *Dict) ValidatePostDecode(s *Schema, value any, sp jsonpointer.Pointer, op Operation) error {
	if m, ok := value.(map[string]any); ok {
		for _, k := range sortedKeys(m) {
			if err := f.elem.ValidatePostDecode(s, m[k], sp.Child(k), op); err != nil {
				return err
			}
		}
	}
	return f.fieldState.ValidatePostDecode(s, value, sp, op)
}

func (f *Dict) Encode(s *Schema, value any) (any, error) {
	if value == nil {
		return map[string]any{}, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return map[string]any{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, apierror.Configuration("field %q: cannot encode %T as an object", f.key, value)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		ev, err := f.elem.Encode(s, iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		out[iter.Key().String()] = ev
	}
	return out, nil
}

// List is an array attribute whose elements all share one element
// field. Validation and decoding recurse into the elements, extending
// the source pointer with the element index.
type List struct {
	fieldState
	elem Field
}

// NewList returns an array attribute field. elem describes the
// elements; its key and accessors are unused.
func NewList(key string, elem Field, opts ...Option) *List {
	f := &List{fieldState: fieldState{key: key, writable: Always}, elem: elem}
	applyOptions(f, opts)
	return f
}

func (f *List) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	if f.elem != nil {
		c.elem = f.elem.clone()
	}
	return &c
}

func (f *List) finish(s *Schema) error {
	if err := f.fieldState.finish(s); err != nil {
		return err
	}
	if f.elem == nil {
		return apierror.Configuration("field %q has no element field", f.key)
	}
	return f.elem.state().optionErr
}

func (f *List) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	items, ok := raw.([]any)
	if !ok {
		return apierror.InvalidType("Must be an array.", sp)
	}
	for i, item := range items {
		if err := f.elem.ValidatePreDecode(s, item, sp.ChildIndex(i), op); err != nil {
			return err
		}
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

func (f *List) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, apierror.InvalidType("Must be an array.", sp)
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := f.elem.Decode(s, item, sp.ChildIndex(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *List) ValidatePostDecode(s *Schema, value any, sp jsonpointer.Pointer, op Operation) error {
	if items, ok := value.([]any); ok {
		for i, item := range items {
			if err := f.elem.ValidatePostDecode(s, item, sp.ChildIndex(i), op); err != nil {
				return err
			}
		}
	}
	return f.fieldState.ValidatePostDecode(s, value, sp, op)
}

func (f *List) Encode(s *Schema, value any) (any, error) {
	if value == nil {
		return []any{}, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return []any{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, apierror.Configuration("field %q: cannot encode %T as an array", f.key, value)
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, err := f.elem.Encode(s, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}
