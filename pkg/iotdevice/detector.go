package iotdevice

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
)

// ServiceChanges is the delta of one service produced by a detection pass.
type ServiceChanges struct {
	ServiceID  string
	Properties map[string]any
}

// ChangeSet is an ordered sequence of per-service deltas.
type ChangeSet []ServiceChanges

// detect compares the service's current property values with its baseline.
//
// With names, only those properties are read; each must be declared.
// Without names, every declared property is read. Either way baseline keys
// the service no longer declares are dropped.
//
// A property that cannot be read, or that holds a NaN or infinite number, is left out of the result and reported
// as a *PropertyReadError; the pass continues. Callers must hold e.mu.
func (e *serviceEntry) detect(names []string) (map[string]any, []error) {
	declared := e.svc.PropertyNames()
	e.prune(declared)

	if len(names) == 0 {
		names = declared
	}

	changes := make(map[string]any)
	var errs []error
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if !declares(declared, name) {
			errs = append(errs, &PropertyReadError{ServiceID: e.id, Property: name, Err: ErrUnknownProperty})
			continue
		}

		value, err := e.read(name)
		if err == nil && !finite(value) {
			err = fmt.Errorf("%w: %v", ErrNonFiniteValue, value)
		}
		if err != nil {
			errs = append(errs, &PropertyReadError{ServiceID: e.id, Property: name, Err: err})
			continue
		}

		if last, ok := e.snapshot[name]; ok && valuesEqual(last, value) {
			continue
		}
		changes[name] = deepCopyValue(value)
	}

	return changes, errs
}

// read calls ReadProperty, converting a panic into an error.
func (e *serviceEntry) read(name string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return e.svc.ReadProperty(name)
}

// commit advances the baseline after a successful report. Callers must hold e.mu.
func (e *serviceEntry) commit(changes map[string]any) {
	for name, value := range changes {
		e.snapshot[name] = deepCopyValue(value)
	}
}

// prune drops baseline keys that are not declared. Callers must hold e.mu.
func (e *serviceEntry) prune(declared []string) {
	for name := range e.snapshot {
		if !declares(declared, name) {
			delete(e.snapshot, name)
		}
	}
}

// baseline returns a copy of the last reported values.
func (e *serviceEntry) baseline() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return deepCopyMap(e.snapshot)
}

// valuesEqual compares property values structurally.
//
// Numbers compare by value across Go numeric types, so a baseline restored
// from JSON (float64) still equals the int the service returns. []byte
// compares by content; maps and slices compare element-wise.
func valuesEqual(a, b any) bool {
	// Handle nil cases
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	// Handle []byte specially - cannot use == on slices
	aBytes, aIsBytes := a.([]byte)
	bBytes, bIsBytes := b.([]byte)
	if aIsBytes || bIsBytes {
		return aIsBytes && bIsBytes && bytes.Equal(aBytes, bBytes)
	}

	return valueEqual(reflect.ValueOf(a), reflect.ValueOf(b))
}

func valueEqual(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface {
		b = b.Elem()
	}
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}

	if isNumber(a.Kind()) && isNumber(b.Kind()) {
		return numbersEqual(a, b)
	}

	switch {
	case isList(a.Kind()) && isList(b.Kind()):
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !valueEqual(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true

	case a.Kind() == reflect.Map && b.Kind() == reflect.Map &&
		a.Type().Key().Kind() == reflect.String && b.Type().Key().Kind() == reflect.String:
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(reflect.ValueOf(iter.Key().String()).Convert(b.Type().Key()))
			if !bv.IsValid() || !valueEqual(iter.Value(), bv) {
				return false
			}
		}
		return true

	case a.Kind() == reflect.Pointer && b.Kind() == reflect.Pointer:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		return valueEqual(a.Elem(), b.Elem())

	case a.Kind() == reflect.Struct && a.Type() == b.Type() && allExported(a.Type()):
		for i := 0; i < a.NumField(); i++ {
			if !valueEqual(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	}

	// Opaque structs such as time.Time, and anything else, follow DeepEqual,
	// which still walks pointers and slices by content.
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

func allExported(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return false
		}
	}
	return true
}

// finite reports false for a top-level NaN or infinity, which JSON cannot carry.
func finite(v any) bool {
	switch f := v.(type) {
	case float64:
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case float32:
		return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
	}
	return true
}

func isList(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

// numbersEqual compares integers exactly and falls back to float64 otherwise.
func numbersEqual(a, b reflect.Value) bool {
	ak, bk := a.Kind(), b.Kind()
	switch {
	case isSigned(ak) && isSigned(bk):
		return a.Int() == b.Int()
	case isUnsigned(ak) && isUnsigned(bk):
		return a.Uint() == b.Uint()
	case isSigned(ak) && isUnsigned(bk):
		return a.Int() >= 0 && uint64(a.Int()) == b.Uint()
	case isUnsigned(ak) && isSigned(bk):
		return b.Int() >= 0 && uint64(b.Int()) == a.Uint()
	}
	fa, fb := toFloat(a), toFloat(b)
	return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isSigned(v.Kind()):
		return float64(v.Int())
	case isUnsigned(v.Kind()):
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// maxCopyDepth bounds deepCopyValue on self-referencing values. Anything
// deeper is shared rather than copied.
const maxCopyDepth = 32

// deepCopyValue copies v so that later in-place mutation by the service,
// through nested maps, slices, pointers or exported struct fields, is still
// seen as a change. Unexported struct fields are copied by value only; they
// are not part of the reported JSON either.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	return copyValue(reflect.ValueOf(v), 0).Interface()
}

func copyValue(v reflect.Value, depth int) reflect.Value {
	if depth > maxCopyDepth {
		return v
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		c := reflect.New(v.Type()).Elem()
		c.Set(copyValue(v.Elem(), depth+1))
		return c

	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(copyValue(v.Elem(), depth+1))
		return p

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			c.Index(i).Set(copyValue(v.Index(i), depth+1))
		}
		return c

	case reflect.Array:
		c := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			c.Index(i).Set(copyValue(v.Index(i), depth+1))
		}
		return c

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		c := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			c.SetMapIndex(iter.Key(), copyValue(iter.Value(), depth+1))
		}
		return c

	case reflect.Struct:
		c := reflect.New(v.Type()).Elem()
		c.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				c.Field(i).Set(copyValue(v.Field(i), depth+1))
			}
		}
		return c
	}
	return v
}
