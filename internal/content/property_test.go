package content

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/notion-mcp/internal/errkind"
)

func TestPropertyRoundTrip(t *testing.T) {
	cases := []struct {
		tag   string
		value any
	}{
		{PropTitle, "Quarterly plan"},
		{PropTitle, ""},
		{PropRichText, "multi\nline"},
		{PropSelect, "Todo"},
		{PropStatus, "In progress"},
		{PropMultiSelect, []string{"a", "b"}},
		{PropMultiSelect, []string{}},
		{PropDate, "2024-05-01"},
		{PropDate, "2024-05-01T10:00:00Z"},
		{PropDateRange, DateRange{Start: "2024-05-01", End: "2024-05-03"}},
		{PropCheckbox, true},
		{PropCheckbox, false},
		{PropNumber, 42.5},
		{PropNumber, float64(-3)},
		{PropURL, "https://example.com/a?b=c"},
		{PropEmail, "ada@example.com"},
		{PropPhone, "+1 555 0100"},
	}
	for _, tc := range cases {
		t.Run(tc.tag, func(t *testing.T) {
			wire, err := ToPropertyValue(tc.tag, tc.value)
			require.NoError(t, err)

			got := FromPropertyValue(wire)
			assert.Equal(t, tc.tag, got.Type)
			assert.Equal(t, tc.value, got.Value)
		})
	}
}

func TestPropertyWireShapes(t *testing.T) {
	cases := []struct {
		tag   string
		value any
		want  string
	}{
		{PropSelect, "Todo", `{"select":{"name":"Todo"}}`},
		{PropMultiSelect, []any{"x"}, `{"multi_select":[{"name":"x"}]}`},
		{PropDate, map[string]any{"start": "2024-01-01", "end": nil}, `{"date":{"start":"2024-01-01"}}`},
		{PropDate, map[string]any{"start": "2024-01-01", "end": "2024-01-02"}, `{"date":{"start":"2024-01-01","end":"2024-01-02"}}`},
		{PropDateRange, []any{"2024-01-01", "2024-01-02"}, `{"date":{"start":"2024-01-01","end":"2024-01-02"}}`},
		{PropNumber, 7, `{"number":7}`},
		{PropNumber, json.Number("1.25"), `{"number":1.25}`},
		{"phone_number", "555", `{"phone_number":"555"}`},
		{PropTitle, "T", `{"title":[{"type":"text","text":{"content":"T"}}]}`},
	}
	for _, tc := range cases {
		wire, err := ToPropertyValue(tc.tag, tc.value)
		require.NoError(t, err, tc.tag)
		assert.JSONEq(t, tc.want, string(wire), tc.tag)
	}
}

func TestPropertyInvalidValues(t *testing.T) {
	cases := []struct {
		tag   string
		value any
	}{
		{PropTitle, 3},
		{PropRichText, nil},
		{PropSelect, ""},
		{PropSelect, "a,b"},
		{PropStatus, true},
		{PropMultiSelect, "a"},
		{PropMultiSelect, []any{"a", 1}},
		{PropDate, "yesterday"},
		{PropDate, 20240501},
		{PropDateRange, "2024-05-01"},
		{PropDateRange, DateRange{Start: "2024-05-03", End: "2024-05-01"}},
		{PropDateRange, []any{"2024-05-01"}},
		{PropCheckbox, "true"},
		{PropCheckbox, 1},
		{PropNumber, "12"},
		{PropNumber, math.NaN()},
		{PropNumber, math.Inf(1)},
		{PropURL, "not a url"},
		{PropURL, "/relative"},
		{PropEmail, "ada"},
		{PropEmail, "@example.com"},
		{PropPhone, "  "},
	}
	for _, tc := range cases {
		_, err := ToPropertyValue(tc.tag, tc.value)
		require.Error(t, err, "%s %#v", tc.tag, tc.value)
		assert.True(t, errors.Is(err, errkind.InvalidPropertyValue), "%s %#v: %v", tc.tag, tc.value, err)
	}
}

func TestPropertyUnsupportedType(t *testing.T) {
	_, err := ToPropertyValue("relation", []string{"p1"})
	require.Error(t, err)
	assert.Equal(t, "UnsupportedPropertyType", errkind.Of(err))
}

func TestFromPropertyValueUnknownShapes(t *testing.T) {
	for _, raw := range []string{
		`{"id":"f","type":"formula","formula":{"type":"number","number":3}}`,
		`{"select":{"name":"a"},"checkbox":true}`,
		`{"type":"checkbox","checkbox":"yes"}`,
		`[1,2]`,
		`{"type":"title"}`,
	} {
		got := FromPropertyValue(json.RawMessage(raw))
		assert.Equal(t, PropUnknown, got.Type, raw)
		assert.JSONEq(t, raw, string(got.Raw), raw)
	}
}

func TestFromPropertyValueBackendShapes(t *testing.T) {
	got := FromPropertyValue(json.RawMessage(`{"id":"d","type":"date","date":{"start":"2024-01-01","end":null,"time_zone":null}}`))
	assert.Equal(t, PropertyValue{Type: PropDate, Value: "2024-01-01", Wire: "date"}, got)

	got = FromPropertyValue(json.RawMessage(`{"id":"s","type":"select","select":null}`))
	assert.Equal(t, PropertyValue{Type: PropSelect, Wire: "select"}, got)

	got = FromPropertyValue(json.RawMessage(`{"id":"p","type":"phone_number","phone_number":"555"}`))
	assert.Equal(t, PropertyValue{Type: PropPhone, Value: "555", Wire: "phone_number"}, got)

	out, err := json.Marshal(map[string]PropertyValue{
		"a": {Type: PropNumber, Value: 2.0},
		"b": {Type: PropUnknown, Raw: json.RawMessage(`{"x":1}`)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2,"b":{"x":1}}`, string(out))
}
