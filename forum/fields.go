package forum

import (
	"strconv"
	"strings"
)

// Custom field keys owned by the expert workflow. Reporting reads these
// names directly, so they must not change.
const (
	PostPendingExpertApproval    = "pendingExpertApproval"
	PostApprovedExpertGroupName  = "approvedExpertGroupName"
	TopicNeedsExpertPostApproval = "needsExpertPostApproval"
	TopicExpertPostGroupNames    = "expertPostGroupNames"
	CategoryExpertGroupIDs       = "expertGroupIds"
)

const listSeparator = "|"

// Fields is the custom field bag attached to posts, topics and categories.
// Values are stored as strings; the typed accessors below are the only way
// the workflow reads or writes them.
type Fields map[string]string

func (f Fields) String(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

// SetString returns f with key set, allocating the map if needed.
func (f Fields) SetString(key, value string) Fields {
	if f == nil {
		f = Fields{}
	}
	f[key] = value
	return f
}

func (f Fields) Bool(key string) (bool, bool) {
	v, ok := f[key]
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func (f Fields) SetBool(key string, value bool) Fields {
	return f.SetString(key, strconv.FormatBool(value))
}

// Clone copies f so staged writes can be discarded.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// splitList returns the non-empty entries of a separator-joined list as
// stored. Entries are not trimmed, so names compare byte for byte.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, listSeparator) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// appendGroupName adds name to a separator-joined list unless it is already
// there. Order of first appearance is preserved.
func appendGroupName(current, name string) string {
	if (&Group{Name: name}).Validate() != nil {
		return current
	}
	names := splitList(current)
	for _, n := range names {
		if n == name {
			return current
		}
	}
	return strings.Join(append(names, name), listSeparator)
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func formatIDList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, listSeparator)
}
