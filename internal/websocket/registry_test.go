package websocket

import (
	"sort"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newClipboardID() string {
	return primitive.NewObjectID().Hex()
}

func TestRegistryJoin(t *testing.T) {
	r := NewRegistry()
	topic := newClipboardID()

	if got := r.Join(topic, "conn-1"); got != Joined {
		t.Errorf("Expected Joined, got %v", got)
	}
	if !r.IsMember(topic, "conn-1") {
		t.Error("Connection should be a member after join")
	}
	if got := r.MemberCount(topic); got != 1 {
		t.Errorf("Expected 1 member, got %d", got)
	}

	// Joining the same topic twice must not double-count
	if got := r.Join(topic, "conn-1"); got != AlreadyMember {
		t.Errorf("Expected AlreadyMember, got %v", got)
	}
	if got := r.MemberCount(topic); got != 1 {
		t.Errorf("Expected 1 member after duplicate join, got %d", got)
	}
}

func TestRegistryJoinInvalidClipboardID(t *testing.T) {
	r := NewRegistry()

	for _, id := range []string{"", "not-hex", "abc123", "zzzzzzzzzzzzzzzzzzzzzzzz"} {
		if got := r.Join(id, "conn-1"); got != IgnoredInvalidTopic {
			t.Errorf("Join(%q) = %v, want IgnoredInvalidTopic", id, got)
		}
		if r.MemberCount(id) != 0 {
			t.Errorf("Malformed id %q should not create a topic", id)
		}
	}
}

func TestRegistryUserTopic(t *testing.T) {
	r := NewRegistry()

	// User topics are not clipboard ids and bypass the format check
	if got := r.Join(UserTopic("u1"), "conn-1"); got != Joined {
		t.Errorf("Expected Joined for user topic, got %v", got)
	}
	if !IsUserTopic(UserTopic("u1")) {
		t.Error("UserTopic result should be recognized as a user topic")
	}
	if IsUserTopic(newClipboardID()) {
		t.Error("Clipboard id should not be a user topic")
	}
}

func TestRegistryLeave(t *testing.T) {
	r := NewRegistry()
	topic := newClipboardID()

	r.Join(topic, "conn-1")
	r.Join(topic, "conn-2")

	if !r.Leave(topic, "conn-1") {
		t.Error("Leave should report a change for a member")
	}
	if r.IsMember(topic, "conn-1") {
		t.Error("Connection should not be a member after leave")
	}
	if got := r.MemberCount(topic); got != 1 {
		t.Errorf("Expected 1 member after leave, got %d", got)
	}

	// Leaving twice, or leaving an unknown topic, is a no-op
	if r.Leave(topic, "conn-1") {
		t.Error("Duplicate leave should report no change")
	}
	if r.Leave(newClipboardID(), "conn-2") {
		t.Error("Leave on unknown topic should report no change")
	}

	// Last member out drops the topic entirely
	r.Leave(topic, "conn-2")
	if got := r.MemberCount(topic); got != 0 {
		t.Errorf("Expected empty topic, got %d members", got)
	}
}

func TestRegistryLeaveAll(t *testing.T) {
	r := NewRegistry()
	clip := newClipboardID()
	user := UserTopic("u1")

	r.Join(clip, "conn-1")
	r.Join(user, "conn-1")
	r.Join(clip, "conn-2")

	affected := r.LeaveAll("conn-1")
	sort.Strings(affected)
	want := []string{clip, user}
	sort.Strings(want)
	if len(affected) != 2 || affected[0] != want[0] || affected[1] != want[1] {
		t.Errorf("LeaveAll affected = %v, want %v", affected, want)
	}

	if r.IsMember(clip, "conn-1") || r.IsMember(user, "conn-1") {
		t.Error("Connection should be removed from all topics")
	}
	if got := r.MemberCount(clip); got != 1 {
		t.Errorf("Other members should survive, got %d", got)
	}

	// A second LeaveAll for the same connection reports nothing
	if affected := r.LeaveAll("conn-1"); affected != nil {
		t.Errorf("Duplicate LeaveAll should return nil, got %v", affected)
	}
}

func TestRegistryClipboardTopicOf(t *testing.T) {
	r := NewRegistry()
	clip := newClipboardID()

	if got := r.ClipboardTopicOf("conn-1"); got != "" {
		t.Errorf("Expected no clipboard topic, got %q", got)
	}

	r.Join(UserTopic("u1"), "conn-1")
	if got := r.ClipboardTopicOf("conn-1"); got != "" {
		t.Errorf("User topic should not count as clipboard topic, got %q", got)
	}

	r.Join(clip, "conn-1")
	if got := r.ClipboardTopicOf("conn-1"); got != clip {
		t.Errorf("ClipboardTopicOf = %q, want %q", got, clip)
	}
}

func TestRegistryMembersSnapshot(t *testing.T) {
	r := NewRegistry()
	topic := newClipboardID()

	r.Join(topic, "conn-1")
	r.Join(topic, "conn-2")

	members := r.Members(topic)
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}

	// Mutating the snapshot must not touch the registry
	members[0] = "mutated"
	if !r.IsMember(topic, "conn-1") || !r.IsMember(topic, "conn-2") {
		t.Error("Snapshot mutation leaked into the registry")
	}
}
