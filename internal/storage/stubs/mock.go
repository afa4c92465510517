package stubs

import (
	"context"
	"motherbot/internal/models"
	"motherbot/internal/storage"
	"sort"
	"sync"
	"time"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu       sync.RWMutex
	users    map[int64]models.User
	relays   map[string]models.RelayBot
	senders  map[string]map[int64]bool
	messages []models.Message
	blocks   map[models.BlockEntry]bool
	steps    map[int64]models.StepState
	stats    map[string]map[string]*models.DailyStat
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		users:    make(map[int64]models.User),
		relays:   make(map[string]models.RelayBot),
		senders:  make(map[string]map[int64]bool),
		messages: make([]models.Message, 0),
		blocks:   make(map[models.BlockEntry]bool),
		steps:    make(map[int64]models.StepState),
		stats:    make(map[string]map[string]*models.DailyStat),
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// UpsertUser creates the user or refreshes its profile fields. Role and relay ids survive updates.
func (m *MockDB) UpsertUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.ID]
	if !ok {
		u := *user
		u.RelayIDs = append([]string(nil), user.RelayIDs...)
		if u.Role == "" {
			u.Role = models.RoleUser
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now()
		}
		m.users[user.ID] = u
		return nil
	}

	existing.DisplayName = user.DisplayName
	existing.Username = user.Username
	if user.Role != "" {
		existing.Role = user.Role
	}
	m.users[user.ID] = existing
	return nil
}

// GetUser returns a user by id
func (m *MockDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u.RelayIDs = append([]string(nil), u.RelayIDs...)
	return &u, nil
}

// AddUserRelay appends a relay id to the user's set
func (m *MockDB) AddUserRelay(ctx context.Context, userID int64, relayID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, id := range u.RelayIDs {
		if id == relayID {
			return nil
		}
	}
	u.RelayIDs = append(u.RelayIDs, relayID)
	if u.Role == models.RoleUser {
		u.Role = models.RoleOwner
	}
	m.users[userID] = u
	return nil
}

// CreateRelayBot inserts a relay bot guarded by credential uniqueness and the owner quota
func (m *MockDB) CreateRelayBot(ctx context.Context, bot *models.RelayBot, maxPerOwner int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owned := 0
	for _, r := range m.relays {
		if r.Credential == bot.Credential {
			return storage.ErrDuplicateCredential
		}
		if r.OwnerID == bot.OwnerID {
			owned++
		}
	}
	if maxPerOwner > 0 && owned >= maxPerOwner {
		return storage.ErrQuotaExceeded
	}

	m.relays[bot.ID] = copyRelay(*bot)
	return nil
}

// GetRelayBot returns a relay bot by id
func (m *MockDB) GetRelayBot(ctx context.Context, id string) (*models.RelayBot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.relays[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	r = copyRelay(r)
	return &r, nil
}

// GetRelayBotByCredential returns the relay bot registered with the credential
func (m *MockDB) GetRelayBotByCredential(ctx context.Context, credential string) (*models.RelayBot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.relays {
		if r.Credential == credential {
			r = copyRelay(r)
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListRelayBotsByOwner returns the owner's relay bots, newest first, ties broken by id
func (m *MockDB) ListRelayBotsByOwner(ctx context.Context, ownerID int64) ([]models.RelayBot, error) {
	return m.listRelays(func(r models.RelayBot) bool { return r.OwnerID == ownerID }), nil
}

// ListRelayBotsByStatus returns relay bots with the given status
func (m *MockDB) ListRelayBotsByStatus(ctx context.Context, status models.RelayStatus) ([]models.RelayBot, error) {
	return m.listRelays(func(r models.RelayBot) bool { return r.Status == status }), nil
}

func (m *MockDB) listRelays(keep func(models.RelayBot) bool) []models.RelayBot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var relays []models.RelayBot
	for _, r := range m.relays {
		if keep(r) {
			relays = append(relays, copyRelay(r))
		}
	}

	sort.Slice(relays, func(i, j int) bool {
		if !relays[i].CreatedAt.Equal(relays[j].CreatedAt) {
			return relays[i].CreatedAt.After(relays[j].CreatedAt)
		}
		return relays[i].ID < relays[j].ID
	})

	return relays
}

// CountRelayBotsByOwner returns how many relay bots the owner holds
func (m *MockDB) CountRelayBotsByOwner(ctx context.Context, ownerID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.relays {
		if r.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

// SetRelayBotStatus changes the lifecycle status of a relay bot
func (m *MockDB) SetRelayBotStatus(ctx context.Context, id string, status models.RelayStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.relays[id]
	if !ok {
		return storage.ErrNotFound
	}
	r.Status = status
	m.relays[id] = r
	return nil
}

// DeleteRelayBot removes a relay bot and detaches it from its owner
func (m *MockDB) DeleteRelayBot(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.relays[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(m.relays, id)
	delete(m.senders, id)

	if u, ok := m.users[r.OwnerID]; ok {
		kept := u.RelayIDs[:0]
		for _, rid := range u.RelayIDs {
			if rid != id {
				kept = append(kept, rid)
			}
		}
		u.RelayIDs = kept
		m.users[r.OwnerID] = u
	}
	return nil
}

// RecordRelayActivity increments relay counters under the write lock
func (m *MockDB) RecordRelayActivity(ctx context.Context, id string, messagesDelta, usersDelta int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.relays[id]
	if !ok {
		return storage.ErrNotFound
	}
	r.TotalMessages += messagesDelta
	r.TotalUsers += usersDelta
	stamp := at
	r.LastActivity = &stamp
	m.relays[id] = r
	return nil
}

// TouchRelaySender reports whether this is the sender's first message through the relay
func (m *MockDB) TouchRelaySender(ctx context.Context, relayID string, senderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen, ok := m.senders[relayID]
	if !ok {
		seen = make(map[int64]bool)
		m.senders[relayID] = seen
	}
	if seen[senderID] {
		return false, nil
	}
	seen[senderID] = true
	return true, nil
}

// CreateMessage appends a message
func (m *MockDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, *msg)
	return nil
}

// GetMessage returns a message by id
func (m *MockDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.messages {
		if msg.ID == id {
			found := msg
			return &found, nil
		}
	}
	return nil, storage.ErrNotFound
}

// LastMessageFrom returns the newest message from fromID to toID through the relay
func (m *MockDB) LastMessageFrom(ctx context.Context, relayID string, fromID, toID int64) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.RelayID == relayID && msg.FromUserID == fromID && msg.ToUserID == toID {
			return &msg, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListMessages returns the last N messages of a relay, newest first
func (m *MockDB) ListMessages(ctx context.Context, relayID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var messages []models.Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].RelayID != relayID {
			continue
		}
		messages = append(messages, m.messages[i])
		if limit > 0 && len(messages) == limit {
			break
		}
	}
	return messages, nil
}

// MarkRead flags the messages as read
func (m *MockDB) MarkRead(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for i := range m.messages {
		if wanted[m.messages[i].ID] {
			m.messages[i].IsRead = true
		}
	}
	return nil
}

// DeleteMessages drops the stored messages of a relay
func (m *MockDB) DeleteMessages(ctx context.Context, relayID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.RelayID != relayID {
			kept = append(kept, msg)
		}
	}
	removed := len(m.messages) - len(kept)
	m.messages = kept
	return removed, nil
}

// AddBlock inserts a block entry; existing entries are left as is
func (m *MockDB) AddBlock(ctx context.Context, entry models.BlockEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blocks[entry] {
		return false, nil
	}
	m.blocks[entry] = true
	return true, nil
}

// RemoveBlock deletes a block entry if present
func (m *MockDB) RemoveBlock(ctx context.Context, entry models.BlockEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.blocks[entry] {
		return false, nil
	}
	delete(m.blocks, entry)
	return true, nil
}

// IsBlocked reports block list membership
func (m *MockDB) IsBlocked(ctx context.Context, entry models.BlockEntry) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.blocks[entry], nil
}

// SetStep stores the actor's step, merging data when the tag is unchanged
func (m *MockDB) SetStep(ctx context.Context, state *models.StepState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := make(map[string]string, len(state.Data))
	if existing, ok := m.steps[state.ActorID]; ok && existing.Tag == state.Tag {
		for k, v := range existing.Data {
			data[k] = v
		}
	}
	for k, v := range state.Data {
		data[k] = v
	}

	stored := models.StepState{ActorID: state.ActorID, Tag: state.Tag, Data: data}
	if state.ExpiresAt != nil {
		exp := *state.ExpiresAt
		stored.ExpiresAt = &exp
	}
	m.steps[state.ActorID] = stored
	return nil
}

// GetStep returns the actor's unexpired step
func (m *MockDB) GetStep(ctx context.Context, actorID int64, now time.Time) (*models.StepState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.steps[actorID]
	if !ok || st.Expired(now) {
		return nil, storage.ErrNotFound
	}

	data := make(map[string]string, len(st.Data))
	for k, v := range st.Data {
		data[k] = v
	}
	st.Data = data
	return &st, nil
}

// ClearStep removes the actor's step
func (m *MockDB) ClearStep(ctx context.Context, actorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.steps, actorID)
	return nil
}

// DeleteExpiredSteps removes every step whose expiry has passed
func (m *MockDB) DeleteExpiredSteps(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, st := range m.steps {
		if st.Expired(now) {
			delete(m.steps, id)
			removed++
		}
	}
	return removed, nil
}

// IncrementDailyStat adds delta to one aggregate field
func (m *MockDB) IncrementDailyStat(ctx context.Context, relayID, day, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	days, ok := m.stats[relayID]
	if !ok {
		days = make(map[string]*models.DailyStat)
		m.stats[relayID] = days
	}
	stat, ok := days[day]
	if !ok {
		stat = &models.DailyStat{RelayID: relayID, Day: day}
		days[day] = stat
	}

	switch field {
	case models.StatMessages:
		stat.Messages += delta
	case models.StatReplies:
		stat.Replies += delta
	case models.StatBlocked:
		stat.Blocked += delta
	case models.StatSenders:
		stat.Senders += delta
	}
	return nil
}

// GetDailyStats returns aggregates since the given day, newest first
func (m *MockDB) GetDailyStats(ctx context.Context, relayID, sinceDay string) ([]models.DailyStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats []models.DailyStat
	for day, stat := range m.stats[relayID] {
		if day >= sinceDay {
			stats = append(stats, *stat)
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Day > stats[j].Day
	})
	return stats, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func copyRelay(r models.RelayBot) models.RelayBot {
	if r.LastActivity != nil {
		t := *r.LastActivity
		r.LastActivity = &t
	}
	return r
}
