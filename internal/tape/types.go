package tape

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FieldType identifies the declared type of a tape column.
type FieldType int

const (
	// TypeString is free-form or coded text
	TypeString FieldType = iota
	// TypeInteger is a whole-number column (counts, codes)
	TypeInteger
	// TypeDecimal is a fractional numeric column (balances, rates, ratios)
	TypeDecimal
	// TypeDate is a calendar date column
	TypeDate
	// TypeBoolean is a yes/no indicator column
	TypeBoolean
)

// String returns the string representation of the field type
func (ft FieldType) String() string {
	switch ft {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeDate:
		return "date"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of this type carry a numeric payload
func (ft FieldType) Numeric() bool {
	return ft == TypeInteger || ft == TypeDecimal
}

// Field declares one named, typed column slot of the tape schema.
// A Field is immutable once the schema is built.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Min      *float64  `json:"min,omitempty"`  // inclusive lower bound for numeric fields
	Max      *float64  `json:"max,omitempty"`  // inclusive upper bound for numeric fields
	Enum     []string  `json:"enum,omitempty"` // allowed coded values, empty means unconstrained
}

// Value is one typed cell. Missing marks a cell that was absent or could not
// be parsed into the declared type; Raw preserves the original text for
// diagnostics in that case.
type Value struct {
	Type    FieldType `json:"type"`
	Missing bool      `json:"missing"`
	Raw     string    `json:"raw,omitempty"`

	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Date time.Time `json:"date,omitempty"`
	Bool bool      `json:"bool,omitempty"`
}

// StringValue constructs a present string value
func StringValue(s string) Value {
	return Value{Type: TypeString, Str: s}
}

// IntValue constructs a present integer value
func IntValue(n int64) Value {
	return Value{Type: TypeInteger, Num: float64(n)}
}

// DecimalValue constructs a present decimal value
func DecimalValue(f float64) Value {
	return Value{Type: TypeDecimal, Num: f}
}

// DateValue constructs a present date value
func DateValue(t time.Time) Value {
	return Value{Type: TypeDate, Date: t}
}

// BoolValue constructs a present boolean value
func BoolValue(b bool) Value {
	return Value{Type: TypeBoolean, Bool: b}
}

// MissingValue constructs an explicit missing/unparseable marker for the
// given declared type, preserving the raw cell text.
func MissingValue(ft FieldType, raw string) Value {
	return Value{Type: ft, Missing: true, Raw: raw}
}

// Float returns the numeric payload. The second return is false when the
// value is missing or not numeric.
func (v Value) Float() (float64, bool) {
	if v.Missing || !v.Type.Numeric() {
		return 0, false
	}
	return v.Num, true
}

// Int returns the numeric payload truncated to an integer code.
func (v Value) Int() (int64, bool) {
	f, ok := v.Float()
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Text returns the string payload for present string values.
func (v Value) Text() (string, bool) {
	if v.Missing || v.Type != TypeString {
		return "", false
	}
	return v.Str, true
}

// Day returns the date payload for present date values.
func (v Value) Day() (time.Time, bool) {
	if v.Missing || v.Type != TypeDate {
		return time.Time{}, false
	}
	return v.Date, true
}

// Flag returns the boolean payload for present boolean values.
func (v Value) Flag() (bool, bool) {
	if v.Missing || v.Type != TypeBoolean {
		return false, false
	}
	return v.Bool, true
}

// String renders the value for report output.
func (v Value) String() string {
	if v.Missing {
		if v.Raw != "" {
			return fmt.Sprintf("?(%s)", v.Raw)
		}
		return ""
	}
	switch v.Type {
	case TypeString:
		return v.Str
	case TypeInteger:
		return fmt.Sprintf("%d", int64(v.Num))
	case TypeDecimal:
		return fmt.Sprintf("%g", v.Num)
	case TypeDate:
		return v.Date.Format("2006-01-02")
	case TypeBoolean:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return ""
	}
}

// Record is one loan's row: a caller-supplied identifier plus a mapping from
// field name to typed value. Records are immutable after ingestion; lookups
// never mutate the record and the engine never writes back into one.
type Record struct {
	id     string
	values map[string]Value
}

// NewRecord builds a record from an id and a field->value mapping.
// The mapping is copied so later mutation of the argument cannot leak in.
func NewRecord(id string, values map[string]Value) Record {
	copied := make(map[string]Value, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Record{id: id, values: copied}
}

// ID returns the loan identifier
func (r Record) ID() string {
	return r.id
}

// Value looks up a field by name. The second return is false when the field
// is not part of the record at all (distinct from present-but-missing).
func (r Record) Value(field string) (Value, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Has reports whether the field exists on this record, missing or not.
func (r Record) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Missing reports whether the field is absent or carries a missing marker.
func (r Record) Missing(field string) bool {
	v, ok := r.values[field]
	return !ok || v.Missing
}

// Float is a convenience lookup for a present numeric field value.
func (r Record) Float(field string) (float64, bool) {
	v, ok := r.values[field]
	if !ok {
		return 0, false
	}
	return v.Float()
}

// Int is a convenience lookup for a present integer-coded field value.
func (r Record) Int(field string) (int64, bool) {
	v, ok := r.values[field]
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Text is a convenience lookup for a present string field value.
func (r Record) Text(field string) (string, bool) {
	v, ok := r.values[field]
	if !ok {
		return "", false
	}
	return v.Text()
}

// Day is a convenience lookup for a present date field value.
func (r Record) Day(field string) (time.Time, bool) {
	v, ok := r.values[field]
	if !ok {
		return time.Time{}, false
	}
	return v.Day()
}

// Len returns the number of fields carried by the record
func (r Record) Len() int {
	return len(r.values)
}

// Schema is the ordered set of declared fields for one tape layout.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from an ordered field list. Field names must be
// unique after normalization.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		name := NormalizeColumn(f.Name)
		if name == "" {
			return nil, fmt.Errorf("schema field with empty name")
		}
		if _, exists := s.index[name]; exists {
			return nil, fmt.Errorf("duplicate schema field %q", name)
		}
		f.Name = name
		s.index[name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Fields returns the declared fields in schema order
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a declared field by normalized name
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[NormalizeColumn(name)]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Required returns the names of all required fields in schema order
func (s *Schema) Required() []string {
	var out []string
	for _, f := range s.fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Len returns the number of declared fields
func (s *Schema) Len() int {
	return len(s.fields)
}

var nonAlnumRe = regexp.MustCompile(`[^0-9A-Za-z]+`)

// NormalizeColumn converts a spreadsheet column header to the canonical
// lowercase snake_case field name, so "Original LTV", "original_ltv" and
// "Original  LTV " all resolve to the same schema field.
func NormalizeColumn(name string) string {
	cleaned := nonAlnumRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(cleaned, "_")
}

var canonicalReplacements = map[string]string{
	"yrs": "years",
	"yr":  "year",
	"pct": "percent",
	"num": "number",
	"nbr": "number",
	"amt": "amount",
}

var canonicalStopwords = map[string]bool{
	"of": true, "the": true, "and": true, "or": true,
	"at": true, "in": true, "for": true, "to": true, "from": true,
}

// CanonicalKey collapses a header further than NormalizeColumn: stopwords are
// dropped and common abbreviations expanded, so "Total Nbr of Borrowers" and
// "total_number_of_borrowers" share a key. Used as the fallback when
// ingestion maps tape headers onto schema fields.
func CanonicalKey(name string) string {
	var b strings.Builder
	for _, token := range strings.Split(NormalizeColumn(name), "_") {
		if token == "" || canonicalStopwords[token] {
			continue
		}
		if repl, ok := canonicalReplacements[token]; ok {
			token = repl
		}
		b.WriteString(token)
	}
	return b.String()
}
