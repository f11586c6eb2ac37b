package audit

import (
	"reflect"
	"sort"
)

// Diff computes the changed field set for a mutation. CREATE changes every
// field of the new state, DELETE every field of the old state, UPDATE the
// keys whose values differ between the two (including keys present on only
// one side). The result is sorted for stable persistence.
func Diff(action Action, oldValues, newValues map[string]any) []string {
	set := make(map[string]struct{})
	switch action {
	case ActionCreate:
		for k := range newValues {
			set[k] = struct{}{}
		}
	case ActionDelete:
		for k := range oldValues {
			set[k] = struct{}{}
		}
	default:
		for k, ov := range oldValues {
			nv, ok := newValues[k]
			if !ok || !reflect.DeepEqual(ov, nv) {
				set[k] = struct{}{}
			}
		}
		for k := range newValues {
			if _, ok := oldValues[k]; !ok {
				set[k] = struct{}{}
			}
		}
	}
	fields := make([]string, 0, len(set))
	for k := range set {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
