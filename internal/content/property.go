package content

import (
	"encoding/json"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/ggoodman/notion-mcp/internal/errkind"
)

// Property type tags accepted by ToPropertyValue.
const (
	PropTitle       = "title"
	PropRichText    = "rich_text"
	PropSelect      = "select"
	PropStatus      = "status"
	PropMultiSelect = "multi_select"
	PropDate        = "date"
	PropDateRange   = "date-range"
	PropCheckbox    = "checkbox"
	PropNumber      = "number"
	PropURL         = "url"
	PropEmail       = "email"
	PropPhone       = "phone"
	PropUnknown     = "unknown"
)

// DateRange is a date property with an end.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PropertyValue is a decoded property. Value holds a string, []string, bool,
// float64, DateRange or nil depending on Type. Unknown properties carry only
// Raw.
type PropertyValue struct {
	Type  string
	Value any
	Raw   json.RawMessage
	// Wire is the backend type of the property ("phone_number", "people"),
	// which Type folds or drops. Empty when the shape carried no type.
	Wire string
}

// MarshalJSON emits the decoded value, or the raw backend JSON for unknown
// properties.
func (v PropertyValue) MarshalJSON() ([]byte, error) {
	if v.Type == PropUnknown && v.Raw != nil {
		return v.Raw, nil
	}
	return json.Marshal(v.Value)
}

// ToPropertyValue encodes one property value in the backend wire shape, for
// example {"select":{"name":"Todo"}}. "phone_number" is accepted as an alias
// of "phone", and a date given with an end is encoded as a range.
func ToPropertyValue(typeTag string, raw any) (json.RawMessage, error) {
	var wire map[string]any
	switch typeTag {
	case PropTitle, PropRichText:
		s, err := stringValue(typeTag, raw)
		if err != nil {
			return nil, err
		}
		wire = map[string]any{typeTag: TextSpans(s)}
	case PropSelect, PropStatus:
		name, err := optionName(typeTag, raw)
		if err != nil {
			return nil, err
		}
		wire = map[string]any{typeTag: map[string]string{"name": name}}
	case PropMultiSelect:
		names, err := optionNames(raw)
		if err != nil {
			return nil, err
		}
		opts := make([]map[string]string, 0, len(names))
		for _, n := range names {
			opts = append(opts, map[string]string{"name": n})
		}
		wire = map[string]any{typeTag: opts}
	case PropDate, PropDateRange:
		d, err := dateValue(typeTag, raw)
		if err != nil {
			return nil, err
		}
		if d.End == "" {
			wire = map[string]any{"date": map[string]string{"start": d.Start}}
		} else {
			wire = map[string]any{"date": d}
		}
	case PropCheckbox:
		b, ok := raw.(bool)
		if !ok {
			return nil, invalidValue(typeTag, raw, "expected a boolean")
		}
		wire = map[string]any{typeTag: b}
	case PropNumber:
		n, err := numberValue(raw)
		if err != nil {
			return nil, err
		}
		wire = map[string]any{typeTag: n}
	case PropURL:
		s, err := stringValue(typeTag, raw)
		if err != nil {
			return nil, err
		}
		if u, perr := url.ParseRequestURI(s); perr != nil || u.Scheme == "" || u.Host == "" {
			return nil, invalidValue(typeTag, raw, "expected an absolute URL")
		}
		wire = map[string]any{typeTag: s}
	case PropEmail:
		s, err := stringValue(typeTag, raw)
		if err != nil {
			return nil, err
		}
		at := strings.Index(s, "@")
		if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t\n") {
			return nil, invalidValue(typeTag, raw, "expected an email address")
		}
		wire = map[string]any{typeTag: s}
	case PropPhone, "phone_number":
		s, err := stringValue(PropPhone, raw)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(s) == "" {
			return nil, invalidValue(PropPhone, raw, "expected a phone number")
		}
		wire = map[string]any{"phone_number": s}
	default:
		return nil, errkind.New(errkind.UnsupportedPropertyType, "unsupported property type %q", typeTag)
	}
	out, err := json.Marshal(wire)
	if err != nil {
		return nil, errkind.Mark(err, errkind.InvalidPropertyValue)
	}
	return out, nil
}

// FromPropertyValue decodes a property from either the backend read shape
// (with "type") or the request shape produced by ToPropertyValue. Shapes it
// does not understand decode as "unknown" with the raw JSON preserved.
func FromPropertyValue(data json.RawMessage) PropertyValue {
	unknown := PropertyValue{Type: PropUnknown, Raw: append(json.RawMessage(nil), data...)}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return unknown
	}
	typ, ok := propertyTag(fields)
	if !ok {
		return unknown
	}
	payload, ok := fields[typ]
	if !ok {
		return unknown
	}
	v := decodeProperty(typ, payload, unknown)
	v.Wire = typ
	return v
}

// propertyTag reads the type of a backend property object: the "type" field,
// or else its single non-id key.
func propertyTag(fields map[string]json.RawMessage) (string, bool) {
	typ := ""
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &typ); err != nil {
			return "", false
		}
		return typ, typ != ""
	}
	for k := range fields {
		if k == "id" {
			continue
		}
		if typ != "" {
			return "", false
		}
		typ = k
	}
	return typ, typ != ""
}

func decodeProperty(typ string, payload json.RawMessage, unknown PropertyValue) PropertyValue {
	if string(payload) == "null" {
		tag := typ
		if tag == "phone_number" {
			tag = PropPhone
		}
		switch tag {
		case PropSelect, PropStatus, PropDate, PropNumber, PropURL, PropEmail, PropPhone:
			return PropertyValue{Type: tag}
		}
		return unknown
	}

	switch typ {
	case PropTitle, PropRichText:
		var spans []RichText
		if err := json.Unmarshal(payload, &spans); err != nil {
			return unknown
		}
		return PropertyValue{Type: typ, Value: PlainText(spans)}
	case PropSelect, PropStatus:
		var opt struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &opt); err != nil {
			return unknown
		}
		return PropertyValue{Type: typ, Value: opt.Name}
	case PropMultiSelect:
		var opts []struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &opts); err != nil {
			return unknown
		}
		names := make([]string, 0, len(opts))
		for _, o := range opts {
			names = append(names, o.Name)
		}
		return PropertyValue{Type: typ, Value: names}
	case PropDate:
		var d struct {
			Start string  `json:"start"`
			End   *string `json:"end"`
		}
		if err := json.Unmarshal(payload, &d); err != nil {
			return unknown
		}
		if d.End != nil && *d.End != "" {
			return PropertyValue{Type: PropDateRange, Value: DateRange{Start: d.Start, End: *d.End}}
		}
		return PropertyValue{Type: PropDate, Value: d.Start}
	case PropCheckbox:
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return unknown
		}
		return PropertyValue{Type: typ, Value: b}
	case PropNumber:
		var n float64
		if err := json.Unmarshal(payload, &n); err != nil {
			return unknown
		}
		return PropertyValue{Type: typ, Value: n}
	case PropURL, PropEmail, "phone_number":
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return unknown
		}
		if typ == "phone_number" {
			typ = PropPhone
		}
		return PropertyValue{Type: typ, Value: s}
	}
	return unknown
}

func invalidValue(typeTag string, raw any, want string) error {
	return errkind.New(errkind.InvalidPropertyValue, "invalid %s value (%T): %s", typeTag, raw, want)
}

func stringValue(typeTag string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", invalidValue(typeTag, raw, "expected a string")
	}
	return s, nil
}

func optionName(typeTag string, raw any) (string, error) {
	s, err := stringValue(typeTag, raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", invalidValue(typeTag, raw, "option name must not be empty")
	}
	if strings.Contains(s, ",") {
		return "", invalidValue(typeTag, raw, "option name must not contain commas")
	}
	return s, nil
}

func optionNames(raw any) ([]string, error) {
	var items []any
	switch v := raw.(type) {
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []any:
		items = v
	default:
		return nil, invalidValue(PropMultiSelect, raw, "expected a list of option names")
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		n, err := optionName(PropMultiSelect, it)
		if err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, nil
}

func dateValue(typeTag string, raw any) (DateRange, error) {
	var d DateRange
	switch v := raw.(type) {
	case string:
		if typeTag == PropDateRange {
			return d, invalidValue(typeTag, raw, "expected start and end")
		}
		d.Start = v
	case DateRange:
		d = v
	case map[string]any:
		start, ok := v["start"].(string)
		if !ok {
			return d, invalidValue(typeTag, raw, "expected a start date")
		}
		d.Start = start
		if end, present := v["end"]; present && end != nil {
			s, ok := end.(string)
			if !ok {
				return d, invalidValue(typeTag, raw, "expected an end date")
			}
			d.End = s
		}
	case []any:
		if len(v) != 2 {
			return d, invalidValue(typeTag, raw, "expected [start, end]")
		}
		start, ok1 := v[0].(string)
		end, ok2 := v[1].(string)
		if !ok1 || !ok2 {
			return d, invalidValue(typeTag, raw, "expected [start, end]")
		}
		d = DateRange{Start: start, End: end}
	default:
		return d, invalidValue(typeTag, raw, "expected an ISO 8601 date")
	}
	if typeTag == PropDateRange && d.End == "" {
		return d, invalidValue(typeTag, raw, "expected an end date")
	}
	start, err := parseDate(d.Start)
	if err != nil {
		return d, invalidValue(typeTag, raw, "start is not an ISO 8601 date")
	}
	if d.End != "" {
		end, err := parseDate(d.End)
		if err != nil {
			return d, invalidValue(typeTag, raw, "end is not an ISO 8601 date")
		}
		if end.Before(start) {
			return d, invalidValue(typeTag, raw, "end is before start")
		}
	}
	return d, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.RFC3339Nano, s)
}

func numberValue(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, invalidValue(PropNumber, raw, "expected a number")
		}
		f = parsed
	default:
		return 0, invalidValue(PropNumber, raw, "expected a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidValue(PropNumber, raw, "expected a finite number")
	}
	return f, nil
}
