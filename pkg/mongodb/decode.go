package mongodb

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
)

// Lookup returns the value stored under key, or a zero RawValue when the
// field is absent.
func Lookup(doc bson.Raw, key string) bson.RawValue {
	v, err := doc.LookupErr(key)
	if err != nil {
		return bson.RawValue{}
	}
	return v
}

func isAbsent(v bson.RawValue) bool {
	return v.Type == 0 || v.Type == bson.TypeNull || v.Type == bson.TypeUndefined
}

// ID renders identifier-like values as text. Anything that is not an
// ObjectId or string is formatted so that later validation can reject it
// with a useful message.
func ID(v bson.RawValue) string {
	switch v.Type {
	case bson.TypeObjectID:
		return v.ObjectID().Hex()
	case bson.TypeString:
		return strings.TrimSpace(v.StringValue())
	default:
		if isAbsent(v) {
			return ""
		}
		return fmt.Sprintf("%s:%s", v.Type, v.String())
	}
}

func String(v bson.RawValue) *string {
	switch v.Type {
	case bson.TypeString:
		s := v.StringValue()
		return &s
	case bson.TypeObjectID:
		s := v.ObjectID().Hex()
		return &s
	case bson.TypeInt32, bson.TypeInt64, bson.TypeDouble:
		s := v.String()
		return &s
	default:
		return nil
	}
}

func Time(v bson.RawValue) *time.Time {
	switch v.Type {
	case bson.TypeDateTime:
		t := v.Time().UTC()
		return &t
	case bson.TypeTimestamp:
		sec, _ := v.Timestamp()
		t := time.Unix(int64(sec), 0).UTC()
		return &t
	case bson.TypeString:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v.StringValue())); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return nil
	default:
		return nil
	}
}

func Float(v bson.RawValue) *float64 {
	var f float64
	switch v.Type {
	case bson.TypeDouble:
		f = v.Double()
	case bson.TypeInt32:
		f = float64(v.Int32())
	case bson.TypeInt64:
		f = float64(v.Int64())
	case bson.TypeDecimal128:
		d, err := decimal.NewFromString(v.Decimal128().String())
		if err != nil {
			return nil
		}
		f = d.InexactFloat64()
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func Int(v bson.RawValue) *int64 {
	var n int64
	switch v.Type {
	case bson.TypeInt32:
		n = int64(v.Int32())
	case bson.TypeInt64:
		n = v.Int64()
	case bson.TypeDouble:
		f := v.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		n = int64(f)
	default:
		return nil
	}
	return &n
}

func Bool(v bson.RawValue) *bool {
	var b bool
	switch v.Type {
	case bson.TypeBoolean:
		b = v.Boolean()
	case bson.TypeInt32:
		b = v.Int32() != 0
	case bson.TypeInt64:
		b = v.Int64() != 0
	default:
		return nil
	}
	return &b
}

// Decimal reads a monetary amount. NaN and the textual placeholders legacy
// writers used for "no price" come back as nil.
func Decimal(v bson.RawValue) *decimal.Decimal {
	switch v.Type {
	case bson.TypeDecimal128:
		s := v.Decimal128().String()
		if strings.EqualFold(s, "nan") || strings.Contains(strings.ToLower(s), "inf") {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		return &d
	case bson.TypeString:
		s := strings.TrimSpace(v.StringValue())
		switch strings.ToLower(s) {
		case "", "nan", "null", "none":
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		return &d
	default:
		f := Float(v)
		if f == nil {
			return nil
		}
		d := decimal.NewFromFloat(*f)
		return &d
	}
}

// JSON converts an embedded value to relaxed extended JSON.
func JSON(v bson.RawValue) []byte {
	if isAbsent(v) {
		return nil
	}
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return nil
	}
	// Strip the {"v": ... } wrapper.
	trimmed := strings.TrimSpace(string(out))
	trimmed = strings.TrimPrefix(trimmed, "{")
	trimmed = strings.TrimSuffix(trimmed, "}")
	idx := strings.Index(trimmed, ":")
	if idx < 0 {
		return nil
	}
	return []byte(strings.TrimSpace(trimmed[idx+1:]))
}
