package uow

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// =====================================
// Entity Metadata
// =====================================

// EntityInfo contains the identity metadata of an entity type.
type EntityInfo struct {
	Name       string
	Type       reflect.Type
	Fields     []FieldInfo
	PrimaryKey []string

	keys       []FieldInfo
	generated  []FieldInfo
	compared   []FieldInfo
	modelIndex []int
}

// FieldInfo contains metadata about a field
type FieldInfo struct {
	Name        string
	Type        reflect.Type
	Index       []int
	Tag         string
	IsKey       bool
	IsGenerated bool
	IsExcluded  bool
}

// KeyFields returns the fields that identify the entity.
func (i *EntityInfo) KeyFields() []FieldInfo { return i.keys }

// GeneratedFields returns the fields populated by the persistence engine.
func (i *EntityInfo) GeneratedFields() []FieldInfo { return i.generated }

// ComparedFields returns every field taking part in equality and hashing.
func (i *EntityInfo) ComparedFields() []FieldInfo { return i.compared }

// Field looks a field up by its Go name.
func (i *EntityInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range i.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// metadata is resolved once per concrete type and kept for the process lifetime.
var metadata = xsync.NewMapOf[reflect.Type, *EntityInfo]()

var modelType = reflect.TypeOf(Model{})

// Describe returns the identity metadata for entity, which must be a struct or a
// pointer to one.
func Describe(entity interface{}) (*EntityInfo, error) {
	t := reflect.TypeOf(entity)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, NewError(ErrorKindInvalidArgument, fmt.Sprintf("entity must be a struct, got %T", entity))
	}
	return describeType(t), nil
}

// DescribeType is Describe for callers that only hold the type parameter.
func DescribeType[T any]() (*EntityInfo, error) {
	var zero T
	return Describe(&zero)
}

func describeType(t reflect.Type) *EntityInfo {
	info, _ := metadata.LoadOrCompute(t, func() *EntityInfo {
		return buildEntityInfo(t)
	})
	return info
}

func buildEntityInfo(t reflect.Type) *EntityInfo {
	info := &EntityInfo{Name: t.Name(), Type: t}

	for _, sf := range reflect.VisibleFields(t) {
		if sf.Type == modelType {
			if sf.Anonymous && info.modelIndex == nil {
				info.modelIndex = sf.Index
			}
			continue
		}
		if sf.Anonymous || !sf.IsExported() {
			continue
		}

		key, generated, excluded := classifyField(sf)
		info.Fields = append(info.Fields, FieldInfo{
			Name:        sf.Name,
			Type:        sf.Type,
			Index:       sf.Index,
			Tag:         string(sf.Tag),
			IsKey:       key,
			IsGenerated: generated,
			IsExcluded:  excluded,
		})
	}

	applyGormKeyDefaults(info)

	for _, f := range info.Fields {
		if f.IsKey {
			info.keys = append(info.keys, f)
			info.PrimaryKey = append(info.PrimaryKey, f.Name)
		}
		if f.IsGenerated {
			info.generated = append(info.generated, f)
		}
		if !f.IsExcluded {
			info.compared = append(info.compared, f)
		}
	}

	return info
}

// applyGormKeyDefaults follows gorm's primary key conventions for structs
// mapped with gorm tags. A field named ID is the key when no key is declared,
// and the prioritized integer key auto-increments unless it is tagged
// autoIncrement:false. Fields with a uow tag are left alone.
func applyGormKeyDefaults(info *EntityInfo) {
	usesGorm := false
	keys := 0
	for _, f := range info.Fields {
		if _, ok := reflect.StructTag(f.Tag).Lookup("gorm"); ok {
			usesGorm = true
		}
		if f.IsKey {
			keys++
		}
	}
	if !usesGorm {
		return
	}

	for i := range info.Fields {
		f := &info.Fields[i]
		tag := reflect.StructTag(f.Tag)
		if _, ok := tag.Lookup("uow"); ok || f.IsExcluded {
			continue
		}
		if keys == 0 && f.Name == "ID" {
			f.IsKey = true
		}
		prioritized := keys <= 1 || f.Name == "ID"
		if f.IsKey && prioritized && isIntegerType(f.Type) && !gormAutoIncrementDisabled(tag.Get("gorm")) {
			f.IsGenerated = true
		}
	}
}

func gormAutoIncrementDisabled(tag string) bool {
	for _, opt := range strings.Split(tag, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(opt), ":")
		if strings.EqualFold(name, "autoincrement") && strings.EqualFold(value, "false") {
			return true
		}
	}
	return false
}

func isIntegerType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// classifyField resolves the key, generated and excluded roles of a field.
// A uow tag takes precedence over engine tags.
func classifyField(sf reflect.StructField) (key, generated, excluded bool) {
	if tag, ok := sf.Tag.Lookup("uow"); ok {
		for _, opt := range strings.Split(tag, ",") {
			switch strings.TrimSpace(opt) {
			case "key":
				key = true
			case "generated":
				generated = true
			case "-", "exclude":
				excluded = true
			}
		}
		return key, generated, excluded
	}

	gormTag := sf.Tag.Get("gorm")
	if gormTag == "-" || strings.HasPrefix(gormTag, "-:") {
		excluded = true
	}
	for _, opt := range strings.Split(gormTag, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(opt), ":")
		switch strings.ToLower(name) {
		case "primarykey", "primary_key":
			key = true
		case "autoincrement":
			if !strings.EqualFold(value, "false") {
				generated = true
			}
		}
	}

	if bunTag, ok := sf.Tag.Lookup("bun"); ok {
		if bunTag == "-" {
			excluded = true
		}
		parts := strings.Split(bunTag, ",")
		for _, opt := range parts[1:] {
			switch strings.TrimSpace(opt) {
			case "pk":
				key = true
			case "autoincrement", "identity":
				generated = true
			}
		}
	}

	switch bsonName, _, _ := strings.Cut(sf.Tag.Get("bson"), ","); bsonName {
	case "-":
		excluded = true
	case "_id":
		key = true
	}

	return key, generated, excluded
}

// fieldValue reads f from the struct value v. The second result is false when
// the field sits behind a nil embedded pointer.
func fieldValue(v reflect.Value, f FieldInfo) (reflect.Value, bool) {
	fv, err := v.FieldByIndexErr(f.Index)
	if err != nil {
		return reflect.Value{}, false
	}
	return fv, true
}

// KeyValues returns the current values of the key fields of entity, in declaration order.
func KeyValues(entity interface{}) ([]interface{}, error) {
	v, info, err := inspect(entity)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, 0, len(info.keys))
	for _, f := range info.keys {
		fv, ok := fieldValue(v, f)
		if !ok {
			values = append(values, nil)
			continue
		}
		values = append(values, fv.Interface())
	}
	return values, nil
}

// inspect dereferences entity and returns its struct value with metadata.
func inspect(entity interface{}) (reflect.Value, *EntityInfo, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, nil, NewError(ErrorKindInvalidArgument, "entity is a nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, nil, NewError(ErrorKindInvalidArgument, fmt.Sprintf("entity must be a struct, got %T", entity))
	}
	return v, describeType(v.Type()), nil
}
