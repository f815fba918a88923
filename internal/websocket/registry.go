package websocket

import (
	"strings"
	"sync"

	"clipboard-service/internal/models"
)

// Topics come in two kinds: clipboard topics keyed by the entry's 24-hex
// ObjectID, and user topics keyed "user:<id>" used to fan out dashboard
// updates to an entry's owner.
const userTopicPrefix = "user:"

// UserTopic returns the topic key for a user's dashboard room.
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// IsUserTopic reports whether topicID names a user dashboard room.
func IsUserTopic(topicID string) bool {
	return strings.HasPrefix(topicID, userTopicPrefix)
}

// JoinResult describes the outcome of a registry join.
type JoinResult int

const (
	// Joined means the connection was added to the topic's member set.
	Joined JoinResult = iota
	// AlreadyMember means the connection was in the set before the call.
	AlreadyMember
	// IgnoredInvalidTopic means the topic id failed the clipboard id format
	// check and the registry was left untouched.
	IgnoredInvalidTopic
)

// Registry tracks which connections are watching which topics. It is the
// single source of truth for active viewer counts: membership is driven only
// by explicit join/leave/disconnect events.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{} // topic id -> connection ids
	conns  map[string]map[string]struct{} // connection id -> topic ids
}

func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]map[string]struct{}),
		conns:  make(map[string]map[string]struct{}),
	}
}

// Join adds connID to the topic's member set. Joining a topic the connection
// is already in is a no-op. Malformed clipboard topic ids never create a
// topic entry.
func (r *Registry) Join(topicID, connID string) JoinResult {
	if !IsUserTopic(topicID) && !models.IsValidClipboardID(topicID) {
		return IgnoredInvalidTopic
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[topicID][connID]; ok {
		return AlreadyMember
	}

	if r.topics[topicID] == nil {
		r.topics[topicID] = make(map[string]struct{})
	}
	r.topics[topicID][connID] = struct{}{}

	if r.conns[connID] == nil {
		r.conns[connID] = make(map[string]struct{})
	}
	r.conns[connID][topicID] = struct{}{}

	return Joined
}

// Leave removes connID from the topic's member set. Removing an absent
// connection is a no-op; it reports whether anything changed.
func (r *Registry) Leave(topicID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(topicID, connID)
}

func (r *Registry) leaveLocked(topicID, connID string) bool {
	members, ok := r.topics[topicID]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.topics, topicID)
	}

	if topics, ok := r.conns[connID]; ok {
		delete(topics, topicID)
		if len(topics) == 0 {
			delete(r.conns, connID)
		}
	}

	return true
}

// LeaveAll removes connID from every topic it belongs to and returns the
// affected topic ids so the caller can broadcast updated counts for each.
// Duplicate calls for an already removed connection return nil.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics, ok := r.conns[connID]
	if !ok {
		return nil
	}

	affected := make([]string, 0, len(topics))
	for topicID := range topics {
		affected = append(affected, topicID)
	}
	for _, topicID := range affected {
		r.leaveLocked(topicID, connID)
	}

	return affected
}

// MemberCount returns the current member set size, 0 for unknown topics.
func (r *Registry) MemberCount(topicID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topicID])
}

// IsMember reports whether connID is currently in the topic's member set.
func (r *Registry) IsMember(topicID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topicID][connID]
	return ok
}

// Members returns a snapshot of the topic's member connection ids.
func (r *Registry) Members(topicID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.topics[topicID]))
	for connID := range r.topics[topicID] {
		members = append(members, connID)
	}
	return members
}

// ClipboardTopicOf returns the clipboard topic connID currently watches, or
// "" when it watches none. A connection holds at most one clipboard room at
// a time; user topics are not considered.
func (r *Registry) ClipboardTopicOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for topicID := range r.conns[connID] {
		if !IsUserTopic(topicID) {
			return topicID
		}
	}
	return ""
}
