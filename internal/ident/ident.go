// Package ident holds the canonical identifier shared by purchases, reference
// dimensions and price rule scopes.
package ident

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrInvalid = errors.New("invalid_identifier")

// ID is a 12-byte document identifier rendered as 24 hex characters.
type ID primitive.ObjectID

// Parse converts a hex string into an ID. An empty string is an absent
// identifier and yields (nil, nil).
func Parse(raw string) (*ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	oid, err := primitive.ObjectIDFromHex(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, trimmed)
	}
	id := ID(oid)
	return &id, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil || id == nil {
		panic(fmt.Sprintf("ident: invalid literal %q", raw))
	}
	return *id
}

// Ptr returns a pointer to a parsed literal.
func Ptr(raw string) *ID {
	id := MustParse(raw)
	return &id
}

// Normalize accepts the identifier shapes found in source documents and
// returns the canonical form. nil input is absent, not malformed.
func Normalize(value any) (*ID, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case ID:
		return &v, nil
	case *ID:
		return v, nil
	case primitive.ObjectID:
		id := ID(v)
		return &id, nil
	case *primitive.ObjectID:
		if v == nil {
			return nil, nil
		}
		id := ID(*v)
		return &id, nil
	case string:
		return Parse(v)
	case *string:
		if v == nil {
			return nil, nil
		}
		return Parse(*v)
	case []byte:
		return Parse(string(v))
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalid, value)
	}
}

func (id ID) Hex() string { return primitive.ObjectID(id).Hex() }

func (id ID) String() string { return id.Hex() }

func (id ID) IsZero() bool { return primitive.ObjectID(id).IsZero() }

// Equal is the null-safe comparison used for optional scope dimensions:
// nil matches only nil.
func Equal(a, b *ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Same requires both sides to be present and equal.
func Same(a, b *ID) bool {
	return a != nil && b != nil && *a == *b
}

// HexPtr renders an optional identifier for logging and export.
func HexPtr(id *ID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}

// GormDataType stores identifiers as text columns.
func (ID) GormDataType() string { return "string" }

func (id ID) Value() (driver.Value, error) {
	return id.Hex(), nil
}

func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = ID{}
		return nil
	case string:
		return id.scanHex(v)
	case []byte:
		return id.scanHex(string(v))
	default:
		return fmt.Errorf("ident: cannot scan %T", src)
	}
}

func (id *ID) scanHex(raw string) error {
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	if parsed == nil {
		*id = ID{}
		return nil
	}
	*id = *parsed
	return nil
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	return id.scanHex(string(b))
}

func (id ID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.ObjectID(id))
}

func (id *ID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeObjectID:
		*id = ID(raw.ObjectID())
		return nil
	case bson.TypeString:
		return id.scanHex(raw.StringValue())
	case bson.TypeNull:
		*id = ID{}
		return nil
	default:
		return fmt.Errorf("ident: cannot decode bson %s", t)
	}
}
