// Package capability defines the access levels a user can hold on a ledger
// and the ordering rules between them.
package capability

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Level is a user's access level on a ledger. Levels are totally ordered:
// a higher level implies every capability of the levels below it.
type Level int

const (
	// LevelNone means no access record exists. It fails every predicate.
	LevelNone Level = iota
	LevelRead
	LevelRecord
	LevelWrite
	LevelAdmin
)

var levelNames = map[Level]string{
	LevelRead:   "READ",
	LevelRecord: "RECORD",
	LevelWrite:  "WRITE",
	LevelAdmin:  "ADMIN",
}

var levelLabels = map[Level]string{
	LevelRead:   "Read Only",
	LevelRecord: "Record Activities",
	LevelWrite:  "Configure Activities",
	LevelAdmin:  "Full Access",
}

// ParseLevel parses the wire name of a level ("ADMIN", "WRITE", "RECORD", "READ").
func ParseLevel(s string) (Level, error) {
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return LevelNone, fmt.Errorf("unknown access level %q", s)
}

// String returns the wire name of the level, or "NONE".
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "NONE"
}

// Label returns the human readable description of the level.
func (l Level) Label() string {
	return levelLabels[l]
}

// Valid reports whether l is one of the four grantable levels.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// AtLeast reports whether l is equal to or above other.
func (l Level) AtLeast(other Level) bool {
	return l.Valid() && l >= other
}

// CanManage reports whether the level may manage membership and ledger metadata.
func CanManage(l Level) bool { return l.AtLeast(LevelAdmin) }

// CanConfigure reports whether the level may create, update and delete templates.
func CanConfigure(l Level) bool { return l.AtLeast(LevelWrite) }

// CanRecord reports whether the level may create, update and delete entries.
func CanRecord(l Level) bool { return l.AtLeast(LevelRecord) }

// CanRead reports whether the level grants any access at all.
func CanRead(l Level) bool { return l.AtLeast(LevelRead) }

func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = LevelNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Value stores the level by its wire name.
func (l Level) Value() (driver.Value, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot store access level %d", int(l))
	}
	return l.String(), nil
}

// Scan reads a level stored by its wire name.
func (l *Level) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into access level", src)
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
