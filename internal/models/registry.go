package models

import (
	"reflect"
	"sort"
)

// All returns a pointer to a zero value of every registered model, ordered
// by type name.
func All() []interface{} {
	names := make([]string, 0, len(ModelTypeRegistry))
	for name := range ModelTypeRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]interface{}, 0, len(names))
	for _, name := range names {
		out = append(out, reflect.New(reflect.TypeOf(ModelTypeRegistry[name])).Interface())
	}
	return out
}
