package ident

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const hexA = "65a1f0c2e4b0a1b2c3d4e5f6"

func TestNormalize(t *testing.T) {
	oid, err := primitive.ObjectIDFromHex(hexA)
	require.NoError(t, err)
	s := hexA

	cases := []struct {
		name    string
		in      any
		want    string
		invalid bool
	}{
		{name: "nil", in: nil},
		{name: "empty string", in: "  "},
		{name: "hex string", in: hexA, want: hexA},
		{name: "padded hex", in: " " + hexA + " ", want: hexA},
		{name: "string pointer", in: &s, want: hexA},
		{name: "object id", in: oid, want: hexA},
		{name: "object id pointer", in: &oid, want: hexA},
		{name: "garbage", in: "not-an-id", invalid: true},
		{name: "short hex", in: "65a1f0", invalid: true},
		{name: "number", in: 42, invalid: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if tc.invalid {
				assert.True(t, errors.Is(err, ErrInvalid))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Hex())
		})
	}
}

func TestEqualTreatsNilAsWildcardOnlyForNil(t *testing.T) {
	a := Ptr(hexA)
	b := Ptr(hexA)
	c := Ptr("65a1f0c2e4b0a1b2c3d4e5f7")

	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, nil))
	assert.False(t, Equal(nil, a))
	assert.False(t, Equal(a, c))

	assert.False(t, Same(nil, nil))
	assert.True(t, Same(a, b))
}

func TestScanAndValue(t *testing.T) {
	var id ID
	require.NoError(t, id.Scan([]byte(hexA)))
	assert.Equal(t, hexA, id.Hex())

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, hexA, v)

	require.NoError(t, id.Scan(nil))
	assert.True(t, id.IsZero())
	assert.Error(t, id.Scan(3.14))
}

func TestJSONRoundTripUsesHex(t *testing.T) {
	payload, err := json.Marshal(struct {
		ID *ID `json:"id"`
	}{ID: Ptr(hexA)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+hexA+`"}`, string(payload))
}
