package flexconfig

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Bind populates the struct pointed to by target from t. Each exported field
// is resolved against the child whose name matches the field name (case
// insensitive) or the `flex:"key:<name>"` tag. Tags may also carry
// `default:<value>` and `format:json`; `flex:"-"` skips a field.
//
// Missing fields without a default are left untouched. Fields that fail to
// convert are reported through an *ErrorGroup; other misuse, such as passing a
// non-struct pointer, is returned directly.
func (t Tree) Bind(target any) error {
	if target == nil {
		return errors.New("flexconfig: target cannot be nil")
	}
	value := reflect.ValueOf(target)
	if value.Kind() != reflect.Pointer || value.IsNil() {
		return errors.New("flexconfig: target must be a non-nil pointer")
	}
	elem := value.Elem()
	if elem.Kind() != reflect.Struct {
		return errors.New("flexconfig: target must point to a struct")
	}
	var group *ErrorGroup
	t.walkStruct(elem, "", &group)
	if group.Has() {
		return group
	}
	return nil
}

func (t Tree) bindValue(target reflect.Value) error {
	var group *ErrorGroup
	t.walkStruct(target, "", &group)
	if group.Has() {
		return group
	}
	return nil
}

func (t Tree) walkStruct(current reflect.Value, prefix string, group **ErrorGroup) {
	typ := current.Type()
	for i := 0; i < current.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldPath := field.Name
		if prefix != "" {
			fieldPath = prefix + "." + fieldPath
		}
		tag, err := parseFieldTag(field.Tag.Get("flex"))
		if err != nil {
			appendFieldError(group, FieldError{FieldPath: fieldPath, Err: err})
			continue
		}
		if tag.Skip {
			continue
		}
		name := tag.Key
		if name == "" {
			name = field.Name
		}
		if field.Anonymous && tag.Key == "" && field.Type.Kind() == reflect.Struct {
			t.walkStruct(current.Field(i), fieldPath, group)
			continue
		}
		t.populateField(current.Field(i), fieldPath, name, tag, group)
	}
}

func (t Tree) populateField(fieldValue reflect.Value, fieldPath, name string, tag fieldTag, group **ErrorGroup) {
	child, ok := t.Lookup(name)
	if ok && strings.EqualFold(tag.Format, "json") {
		raw, hasValue := child.Value()
		if !hasValue {
			appendFieldError(group, FieldError{FieldPath: fieldPath, Key: child.Path(), Err: errNoValue})
			return
		}
		if err := assignJSON(fieldValue, raw); err != nil {
			appendFieldError(group, FieldError{FieldPath: fieldPath, Key: child.Path(), Err: err})
		}
		return
	}
	if ok {
		err := convertInto(child, fieldValue)
		if err == nil {
			return
		}
		if !errors.Is(err, errNoValue) {
			var nested *ErrorGroup
			if errors.As(err, &nested) {
				for _, f := range nested.Fields() {
					f.FieldPath = fieldPath + "." + f.FieldPath
					appendFieldError(group, f)
				}
				return
			}
			appendFieldError(group, FieldError{FieldPath: fieldPath, Key: child.Path(), Err: err})
			return
		}
	}
	if !tag.HasDefault {
		return
	}
	v, err := decodePrimitive(tag.DefaultValue, indirectType(fieldValue.Type()))
	if err != nil {
		appendFieldError(group, FieldError{FieldPath: fieldPath, Key: "default", Err: fmt.Errorf("default decode: %w", err)})
		return
	}
	assign(fieldValue, reflect.ValueOf(v))
}

func assignJSON(field reflect.Value, raw string) error {
	v, err := decodeJSON(raw, indirectType(field.Type()))
	if err != nil {
		return err
	}
	assign(field, reflect.ValueOf(v))
	return nil
}

func indirectType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func assign(field, value reflect.Value) {
	targetType := indirectType(field.Type())
	value = value.Convert(targetType)
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(targetType))
		}
		field.Elem().Set(value)
		return
	}
	field.Set(value)
}
