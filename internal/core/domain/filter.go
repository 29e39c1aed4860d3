package domain

import (
	"sort"
	"strconv"
	"strings"
)

// FilterField names a chunk metadata attribute a filter can test.
type FilterField string

// Filterable metadata fields.
const (
	FilterUploadToken FilterField = "upload_token"
	FilterSessionID   FilterField = "session_id"
	FilterUserID      FilterField = "user_id"
	FilterDocumentID  FilterField = "document_id"
)

// FilterOperator is the comparison applied by a condition.
type FilterOperator string

// Supported operators. Equals tests a single value; In tests set
// membership.
const (
	FilterEquals FilterOperator = "eq"
	FilterIn     FilterOperator = "in"
)

// FilterCondition is one typed predicate: field, operator, value set.
type FilterCondition struct {
	Field    FilterField
	Operator FilterOperator
	Values   []string
}

// Filter is a conjunction of conditions evaluated against chunk
// metadata. An empty filter matches everything.
type Filter struct {
	Conditions []FilterCondition
}

// NewAttributionFilter builds an equality filter from the non-empty
// attribution tags. Returns nil when all tags are empty.
func NewAttributionFilter(attrib Attribution) *Filter {
	var conds []FilterCondition
	if attrib.UploadToken != "" {
		conds = append(conds, FilterCondition{FilterUploadToken, FilterEquals, []string{attrib.UploadToken}})
	}
	if attrib.SessionID != "" {
		conds = append(conds, FilterCondition{FilterSessionID, FilterEquals, []string{attrib.SessionID}})
	}
	if attrib.UserID != "" {
		conds = append(conds, FilterCondition{FilterUserID, FilterEquals, []string{attrib.UserID}})
	}
	if len(conds) == 0 {
		return nil
	}
	return &Filter{Conditions: conds}
}

// Matches evaluates the filter against chunk metadata. All conditions
// must hold. A nil filter matches everything.
func (f *Filter) Matches(meta ChunkMetadata) bool {
	if f == nil {
		return true
	}

	for _, cond := range f.Conditions {
		actual := fieldValue(cond.Field, meta)
		if !cond.matches(actual) {
			return false
		}
	}
	return true
}

// matches tests a single condition against the actual field value.
func (c FilterCondition) matches(actual string) bool {
	switch c.Operator {
	case FilterEquals:
		return len(c.Values) == 1 && c.Values[0] == actual
	case FilterIn:
		for _, v := range c.Values {
			if v == actual {
				return true
			}
		}
		return false
	}
	return false
}

// fieldValue extracts the named field from chunk metadata as a string.
func fieldValue(field FilterField, meta ChunkMetadata) string {
	switch field {
	case FilterUploadToken:
		return meta.Attribution.UploadToken
	case FilterSessionID:
		return meta.Attribution.SessionID
	case FilterUserID:
		return meta.Attribution.UserID
	case FilterDocumentID:
		return strconv.FormatInt(meta.DocumentID, 10)
	}
	return ""
}

// Canonical returns a deterministic textual form of the filter,
// suitable for hashing into a cache key. Conditions are sorted so
// logically equal filters canonicalise identically.
func (f *Filter) Canonical() string {
	if f == nil || len(f.Conditions) == 0 {
		return ""
	}

	parts := make([]string, 0, len(f.Conditions))
	for _, cond := range f.Conditions {
		values := append([]string(nil), cond.Values...)
		sort.Strings(values)
		parts = append(parts, string(cond.Field)+":"+string(cond.Operator)+":"+strings.Join(values, ","))
	}
	sort.Strings(parts)

	return strings.Join(parts, ";")
}
