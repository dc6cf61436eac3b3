package policy

import "strings"

// AllowList decides which platform users may talk to the relay. The zero
// value and an empty list allow everyone.
type AllowList struct {
	ids map[string]struct{}
}

// ParseAllowList reads a comma or whitespace separated list of user IDs.
func ParseAllowList(raw string) AllowList {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return AllowList{}
	}
	ids := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		ids[strings.TrimPrefix(strings.TrimSpace(f), "@")] = struct{}{}
	}
	return AllowList{ids: ids}
}

func (a AllowList) Allows(userID string) bool {
	if len(a.ids) == 0 {
		return true
	}
	_, ok := a.ids[strings.TrimPrefix(strings.TrimSpace(userID), "@")]
	return ok
}

func (a AllowList) Len() int { return len(a.ids) }
