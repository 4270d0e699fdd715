// Package tape defines the normalized loan tape model: a Schema of typed,
// constrained columns, Records holding typed cell Values, and the header
// normalization used to bind spreadsheet columns onto schema fields.
//
// A cell is never raw text once ingested. Every Value is either a typed
// payload or an explicit missing marker preserving the original text, so
// downstream rules can distinguish "absent" from "present but wrong" without
// re-parsing. Records are immutable after construction; the validation and
// stratification engines only read them.
package tape
