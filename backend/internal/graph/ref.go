package graph

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	apperrors "trails/backend/pkg/errors"
)

// NodeRef addresses a node either by the database-assigned native id or by
// the application-level "id" property. The two are never confused once a
// NodeRef has been built.
type NodeRef struct {
	native   int64
	external string
	isNative bool
}

// NativeID refers to a node by its database-assigned integer id.
func NativeID(id int64) NodeRef {
	return NodeRef{native: id, isNative: true}
}

// ExternalID refers to a node by its "id" property.
func ExternalID(id string) NodeRef {
	return NodeRef{external: id}
}

// ParseNodeRef turns a boundary string into a NodeRef. Strings made only of
// digits are treated as native ids.
func ParseNodeRef(s string) (NodeRef, error) {
	if s == "" {
		return NodeRef{}, fmt.Errorf("empty node id")
	}
	if allDigits(s) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return NodeRef{}, fmt.Errorf("invalid native node id %q: %w", s, err)
		}
		return NativeID(id), nil
	}
	return ExternalID(s), nil
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsNative reports whether the ref holds a native id.
func (r NodeRef) IsNative() bool { return r.isNative }

// Native returns the native id when the ref holds one.
func (r NodeRef) Native() (int64, bool) { return r.native, r.isNative }

// IsZero reports whether the ref was never set.
func (r NodeRef) IsZero() bool { return !r.isNative && r.external == "" }

func (r NodeRef) String() string {
	if r.isNative {
		return strconv.FormatInt(r.native, 10)
	}
	return r.external
}

// predicate renders the match condition for variable v bound to parameter param.
func (r NodeRef) predicate(v, param string) string {
	if r.isNative {
		return fmt.Sprintf("id(%s) = $%s", v, param)
	}
	return fmt.Sprintf("%s.id = $%s", v, param)
}

func (r NodeRef) value() any {
	if r.isNative {
		return r.native
	}
	return r.external
}

// MarshalJSON writes native ids as numbers and external ids as strings.
func (r NodeRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value())
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (r *NodeRef) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*r = NativeID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("node id must be a number or a string: %w", err)
	}
	parsed, err := ParseNodeRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks a label, relationship type or property key
// before it is placed into query text. Values never go through here; they
// are always bound as parameters.
func ValidateIdentifier(role, value string) error {
	if !identifierPattern.MatchString(value) {
		return apperrors.NewInvalidIdentifier(role, value)
	}
	return nil
}
