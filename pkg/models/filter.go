package models

import (
	"sort"
	"strings"
)

// Filter maps user-facing field names to the text entered for them.
type Filter map[string]string

// Active returns the filter without blank entries.
func (f Filter) Active() Filter {
	active := Filter{}
	for name, value := range f {
		if strings.TrimSpace(value) == "" {
			continue
		}
		active[name] = strings.TrimSpace(value)
	}
	return active
}

// Names returns the field names in sorted order.
func (f Filter) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
