package models

import "fmt"

// Store identifies one of the four ledgers.
type Store string

const (
	StoreSeat      Store = "seat"
	StorePC        Store = "pc"
	StoreExtension Store = "extension"
	StoreUser      Store = "user"
)

// Stores lists every store in canonical order.
var Stores = []Store{StoreSeat, StorePC, StoreExtension, StoreUser}

// LinkingField is one of the shared identifier fields used to link rows across stores.
type LinkingField string

const (
	FieldSeatNo LinkingField = "SeatNo"
	FieldPCNo   LinkingField = "PCNo"
	FieldExtNo  LinkingField = "ExtNo"
	FieldUserID LinkingField = "UserId"
)

// LinkingFields lists every linking field in canonical order (Seat, PC, Extension, User).
var LinkingFields = []LinkingField{FieldSeatNo, FieldPCNo, FieldExtNo, FieldUserID}

var primaryFields = map[Store]LinkingField{
	StoreSeat:      FieldSeatNo,
	StorePC:        FieldPCNo,
	StoreExtension: FieldExtNo,
	StoreUser:      FieldUserID,
}

// PrimaryField returns the linking field that identifies rows of the store.
func (s Store) PrimaryField() LinkingField {
	return primaryFields[s]
}

// Valid reports whether s is a known store.
func (s Store) Valid() bool {
	_, ok := primaryFields[s]
	return ok
}

// Ordinal returns the canonical position of the store, or -1 when unknown.
func (s Store) Ordinal() int {
	for i, store := range Stores {
		if store == s {
			return i
		}
	}
	return -1
}

// ParseStore converts a string into a Store.
func ParseStore(value string) (Store, error) {
	s := Store(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown store %q", value)
	}
	return s, nil
}

// Ordinal returns the canonical position of the field, or -1 when unknown.
func (f LinkingField) Ordinal() int {
	for i, field := range LinkingFields {
		if field == f {
			return i
		}
	}
	return -1
}

// Valid reports whether f is a known linking field.
func (f LinkingField) Valid() bool {
	return f.Ordinal() >= 0
}

// RawRow is a single record fetched from one store. The engine never mutates it.
type RawRow struct {
	Store    Store                   `json:"store"`
	ID       int64                   `json:"id"`
	Revision int64                   `json:"revision,omitempty"`
	Fields   map[string]string       `json:"fields"`
	Links    map[LinkingField]string `json:"links"`
}

// Link returns the value of a linking field. Absent and empty values both report false.
func (r RawRow) Link(field LinkingField) (string, bool) {
	value, ok := r.Links[field]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Ref renders the row's synthetic identity, used when it carries no linking value.
func (r RawRow) Ref() string {
	return fmt.Sprintf("%s#%d", r.Store, r.ID)
}
