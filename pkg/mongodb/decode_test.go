package mongodb

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rawDoc(t *testing.T, doc bson.M) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(doc)
	require.NoError(t, err)
	return bson.Raw(b)
}

func TestDecodeHelpers(t *testing.T) {
	oid := primitive.NewObjectID()
	created := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	dec, err := primitive.ParseDecimal128("41.25")
	require.NoError(t, err)

	doc := rawDoc(t, bson.M{
		"oid":     oid,
		"str_id":  " " + oid.Hex() + " ",
		"num_id":  int32(7),
		"created": primitive.NewDateTimeFromTime(created),
		"volume":  int32(120),
		"price":   dec,
		"nan":     math.NaN(),
		"nan_str": "nan",
		"serial":  int64(427241),
		"planned": true,
		"tests":   bson.A{bson.M{"fat": 4.5}},
	})

	assert.Equal(t, oid.Hex(), ID(Lookup(doc, "oid")))
	assert.Equal(t, oid.Hex(), ID(Lookup(doc, "str_id")))
	assert.Equal(t, "", ID(Lookup(doc, "missing")))
	assert.NotEmpty(t, ID(Lookup(doc, "num_id")))

	got := Time(Lookup(doc, "created"))
	require.NotNil(t, got)
	assert.True(t, created.Equal(*got))

	vol := Float(Lookup(doc, "volume"))
	require.NotNil(t, vol)
	assert.Equal(t, 120.0, *vol)

	price := Decimal(Lookup(doc, "price"))
	require.NotNil(t, price)
	assert.Equal(t, "41.25", price.String())
	assert.Nil(t, Decimal(Lookup(doc, "nan")))
	assert.Nil(t, Decimal(Lookup(doc, "nan_str")))
	assert.Nil(t, Decimal(Lookup(doc, "missing")))

	serial := Int(Lookup(doc, "serial"))
	require.NotNil(t, serial)
	assert.Equal(t, int64(427241), *serial)

	planned := Bool(Lookup(doc, "planned"))
	require.NotNil(t, planned)
	assert.True(t, *planned)

	assert.JSONEq(t, `[{"fat":4.5}]`, string(JSON(Lookup(doc, "tests"))))
	assert.Nil(t, JSON(Lookup(doc, "missing")))
}
