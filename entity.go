package uow

import (
	"encoding/binary"
	"math"
	"reflect"
	"time"

	"github.com/cespare/xxhash/v2"
)

// =====================================
// Entity Identity
// =====================================

// Model can be embedded in an entity struct to cache its hash code per
// instance. It carries no persisted state; tag it `gorm:"-" bun:"-" bson:"-"`
// when the engine would otherwise map embedded structs.
type Model struct {
	hash   uint64
	hashed bool
}

// Transient lets an entity override the generated-field transience check.
type Transient interface {
	IsTransient() bool
}

var timeType = reflect.TypeOf(time.Time{})

// IsTransient reports whether entity has not been assigned its engine
// generated identity yet: it declares generated fields and at least one of
// them is nil or holds its type's zero value. Entities without generated
// fields are never transient.
func IsTransient(entity interface{}) bool {
	if t, ok := entity.(Transient); ok {
		return t.IsTransient()
	}
	v, info, err := inspect(entity)
	if err != nil {
		return false
	}
	return generatedUnset(v, info)
}

func generatedUnset(v reflect.Value, info *EntityInfo) bool {
	if len(info.generated) == 0 {
		return false
	}
	for _, f := range info.generated {
		fv, ok := fieldValue(v, f)
		if !ok {
			return true
		}
		for fv.Kind() == reflect.Ptr || fv.Kind() == reflect.Interface {
			if fv.IsNil() {
				return true
			}
			fv = fv.Elem()
		}
		if fv.IsZero() {
			return true
		}
	}
	return false
}

func hasNilKey(v reflect.Value, info *EntityInfo) bool {
	for _, f := range info.keys {
		fv, ok := fieldValue(v, f)
		if !ok || isNil(fv) {
			return true
		}
	}
	return false
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// Equal reports whether a and b denote the same persisted entity: same
// concrete type, neither transient, no nil key field, and every non-excluded
// field equal by value.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil || reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	va, info, err := inspect(a)
	if err != nil {
		return false
	}
	vb, _, err := inspect(b)
	if err != nil {
		return false
	}

	if IsTransient(a) || IsTransient(b) {
		return false
	}
	if hasNilKey(va, info) || hasNilKey(vb, info) {
		return false
	}

	for _, f := range info.compared {
		fa, okA := fieldValue(va, f)
		fb, okB := fieldValue(vb, f)
		if okA != okB {
			return false
		}
		if okA && !valuesEqual(fa, fb) {
			return false
		}
	}
	return true
}

func valuesEqual(x, y reflect.Value) bool {
	for {
		if x.Kind() != y.Kind() {
			return false
		}
		if x.Kind() != reflect.Ptr && x.Kind() != reflect.Interface {
			break
		}
		if x.IsNil() || y.IsNil() {
			return x.IsNil() && y.IsNil()
		}
		x, y = x.Elem(), y.Elem()
	}
	if x.Type() != y.Type() {
		return false
	}
	if x.Type() == timeType {
		return x.Interface().(time.Time).Equal(y.Interface().(time.Time))
	}
	if x.Comparable() && y.Comparable() {
		return x.Equal(y)
	}
	return reflect.DeepEqual(x.Interface(), y.Interface())
}

// HashCode returns a hash consistent with Equal. For a persisted entity with
// every key set it folds the hash of each non-excluded field and caches the
// result in the embedded Model, if any. Transient entities and entities with a
// nil key get the identity hash of the instance pointer, recomputed on every
// call; such values passed by value hash to 0.
func HashCode(entity interface{}) uint64 {
	v, info, err := inspect(entity)
	if err != nil {
		return 0
	}
	if IsTransient(entity) || hasNilKey(v, info) {
		return identityHash(entity)
	}

	model := modelOf(v, info)
	if model != nil && model.hashed {
		return model.hash
	}

	d := xxhash.New()
	for _, f := range info.compared {
		fv, ok := fieldValue(v, f)
		if !ok {
			writeValue(d, reflect.Value{})
			continue
		}
		writeValue(d, fv)
	}
	h := d.Sum64()

	if model != nil {
		model.hash, model.hashed = h, true
	}
	return h
}

func identityHash(entity interface{}) uint64 {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr {
		return 0
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(rv.Pointer()))
	return xxhash.Sum64(b[:])
}

func modelOf(v reflect.Value, info *EntityInfo) *Model {
	if info.modelIndex == nil || !v.CanAddr() {
		return nil
	}
	fv, err := v.FieldByIndexErr(info.modelIndex)
	if err != nil {
		return nil
	}
	return fv.Addr().Interface().(*Model)
}

func writeUint64(d *xxhash.Digest, x uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], x)
	_, _ = d.Write(b[:])
}

// writeValue feeds a canonical encoding of v into d. Values equal under
// valuesEqual always produce the same bytes.
func writeValue(d *xxhash.Digest, v reflect.Value) {
	if !v.IsValid() {
		_, _ = d.WriteString("\x00")
		return
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			_, _ = d.WriteString("\x00")
			return
		}
		writeValue(d, v.Elem())
	case reflect.Bool:
		if v.Bool() {
			_, _ = d.WriteString("\x01t")
		} else {
			_, _ = d.WriteString("\x01f")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeUint64(d, uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		writeUint64(d, v.Uint())
	case reflect.Float32, reflect.Float64:
		writeFloat(d, v.Float())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		writeFloat(d, real(c))
		writeFloat(d, imag(c))
	case reflect.String:
		writeUint64(d, uint64(v.Len()))
		_, _ = d.WriteString(v.String())
	case reflect.Slice, reflect.Array:
		writeUint64(d, uint64(v.Len()))
		for i := 0; i < v.Len(); i++ {
			writeValue(d, v.Index(i))
		}
	case reflect.Map:
		// entries are folded with xor so iteration order does not matter
		var acc uint64
		iter := v.MapRange()
		for iter.Next() {
			sub := xxhash.New()
			writeValue(sub, iter.Key())
			writeValue(sub, iter.Value())
			acc ^= sub.Sum64()
		}
		writeUint64(d, uint64(v.Len()))
		writeUint64(d, acc)
	case reflect.Struct:
		if v.Type() == timeType && v.CanInterface() {
			t := v.Interface().(time.Time)
			writeUint64(d, uint64(t.Unix()))
			writeUint64(d, uint64(t.Nanosecond()))
			return
		}
		for i := 0; i < v.NumField(); i++ {
			writeValue(d, v.Field(i))
		}
	default:
		writeUint64(d, uint64(v.Pointer()))
	}
}

func writeFloat(d *xxhash.Digest, f float64) {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	writeUint64(d, math.Float64bits(f))
}
