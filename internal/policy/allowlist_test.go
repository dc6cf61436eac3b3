package policy

import "testing"

func TestAllowListEmptyAllowsEveryone(t *testing.T) {
	var zero AllowList
	if !zero.Allows("42") {
		t.Fatalf("zero AllowList should allow everyone")
	}
	if !ParseAllowList(" , ").Allows("42") {
		t.Fatalf("blank AllowList should allow everyone")
	}
}

func TestAllowListParsesIDs(t *testing.T) {
	a := ParseAllowList("42, 1001;@alice\n7")
	if a.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", a.Len())
	}
	for _, id := range []string{"42", "1001", "alice", "@alice", "7"} {
		if !a.Allows(id) {
			t.Fatalf("Allows(%q) = false, want true", id)
		}
	}
	if a.Allows("43") {
		t.Fatalf("Allows(43) = true, want false")
	}
}
