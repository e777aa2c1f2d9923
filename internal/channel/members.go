package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rickgao/realtime-client/internal/jsoncodec"
)

// Member is one user on a presence channel.
type Member struct {
	ID   string
	Info json.RawMessage // Arbitrary user info, may be nil
}

// Members is the member list of a presence channel.
type Members struct {
	mu      sync.RWMutex
	me      Member
	hasMe   bool
	members map[string]Member
}

func newMembers() *Members {
	return &Members{members: make(map[string]Member)}
}

// Me returns the local user, known once credentials were obtained.
func (m *Members) Me() (Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.me, m.hasMe
}

// Count returns the number of members.
func (m *Members) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

// Get returns the member with the given id.
func (m *Members) Get(id string) (Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.members[id]
	return member, ok
}

// Each calls fn for every member, ordered by id.
func (m *Members) Each(fn func(Member)) {
	m.mu.RLock()
	list := make([]Member, 0, len(m.members))
	for _, member := range m.members {
		list = append(list, member)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	for _, member := range list {
		fn(member)
	}
}

// memberPayload is the wire form of a member, as found in channel_data and
// member_added/member_removed events.
type memberPayload struct {
	UserID   json.RawMessage `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info"`
}

type presencePayload struct {
	Presence struct {
		IDs   []json.RawMessage          `json:"ids"`
		Hash  map[string]json.RawMessage `json:"hash"`
		Count int                        `json:"count"`
	} `json:"presence"`
}

// userID renders a user_id that may be a JSON string or number.
func userID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := jsoncodec.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseMember(data string) (Member, error) {
	var p memberPayload
	if err := jsoncodec.UnmarshalString(data, &p); err != nil {
		return Member{}, fmt.Errorf("parse member: %w", err)
	}
	id := userID(p.UserID)
	if id == "" {
		return Member{}, fmt.Errorf("parse member: missing user_id")
	}
	return Member{ID: id, Info: p.UserInfo}, nil
}

// setMe records the local user from the channel_data of the credentials.
func (m *Members) setMe(channelData string) error {
	me, err := parseMember(channelData)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.me = me
	m.hasMe = true
	m.mu.Unlock()
	return nil
}

// load replaces the member list with the one from a subscription
// acknowledgement.
func (m *Members) load(data string) error {
	var p presencePayload
	if err := jsoncodec.UnmarshalString(data, &p); err != nil {
		return fmt.Errorf("parse presence: %w", err)
	}

	members := make(map[string]Member, len(p.Presence.Hash))
	for id, info := range p.Presence.Hash {
		members[id] = Member{ID: id, Info: info}
	}
	// ids may list members without info
	for _, raw := range p.Presence.IDs {
		id := userID(raw)
		if _, ok := members[id]; !ok && id != "" {
			members[id] = Member{ID: id}
		}
	}

	m.mu.Lock()
	m.members = members
	m.mu.Unlock()
	return nil
}

// add inserts a member. It reports false when the member was already present.
func (m *Members) add(data string) (Member, bool, error) {
	member, err := parseMember(data)
	if err != nil {
		return Member{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.members[member.ID]
	m.members[member.ID] = member
	return member, !exists, nil
}

// remove deletes a member. It reports false when the member was unknown.
func (m *Members) remove(data string) (Member, bool, error) {
	member, err := parseMember(data)
	if err != nil {
		return Member{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.members[member.ID]
	if !ok {
		return member, false, nil
	}
	delete(m.members, member.ID)
	return existing, true, nil
}

func (m *Members) reset() {
	m.mu.Lock()
	m.members = make(map[string]Member)
	m.mu.Unlock()
}
