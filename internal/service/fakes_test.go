package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/cache"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory repository covering boxes, complaints,
// feedback and profiles.
type memStore struct {
	mu         sync.Mutex
	boxes      map[string]*model.Box
	complaints map[string]*model.Complaint
	feedback   []*model.Feedback
	profiles   map[string]*model.Profile
	recomputed []model.DayKey
	createErr  error
}

func newMemStore() *memStore {
	return &memStore{
		boxes:      map[string]*model.Box{},
		complaints: map[string]*model.Complaint{},
		profiles:   map[string]*model.Profile{},
	}
}

func (m *memStore) CreateBox(_ context.Context, box *model.Box) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *box
	m.boxes[box.ID] = &cp
	return nil
}

func (m *memStore) GetBoxByToken(_ context.Context, token string) (*model.Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.boxes {
		if b.Token == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBoxNotFound
}

func (m *memStore) GetOwnedBox(_ context.Context, id, adminID string) (*model.Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[id]
	if !ok || b.AdminID != adminID {
		return nil, repository.ErrBoxNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListBoxesWithStats(_ context.Context, adminID string) ([]*model.BoxWithStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BoxWithStats
	for _, b := range m.boxes {
		if b.AdminID == adminID {
			out = append(out, &model.BoxWithStats{Box: *b})
		}
	}
	return out, nil
}

func (m *memStore) UpdateBox(_ context.Context, box *model.Box) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boxes[box.ID]; !ok {
		return repository.ErrBoxNotFound
	}
	cp := *box
	m.boxes[box.ID] = &cp
	return nil
}

func (m *memStore) DeleteBox(_ context.Context, id, adminID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[id]
	if !ok || b.AdminID != adminID {
		return nil, repository.ErrBoxNotFound
	}
	delete(m.boxes, id)
	var keys []string
	for cid, c := range m.complaints {
		if c.BoxID == id {
			if c.Attachment != nil {
				keys = append(keys, c.Attachment.Key)
			}
			delete(m.complaints, cid)
		}
	}
	return keys, nil
}

func (m *memStore) BoxTokenExists(_ context.Context, token string) (bool, error) {
	_, err := m.GetBoxByToken(context.Background(), token)
	return err == nil, nil
}

func (m *memStore) CreateComplaint(_ context.Context, c *model.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *c
	m.complaints[c.ID] = &cp
	return nil
}

func (m *memStore) GetComplaintByToken(_ context.Context, token string) (*model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.complaints {
		if c.Token == token {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrComplaintNotFound
}

func (m *memStore) GetOwnedComplaint(_ context.Context, id, adminID string) (*model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	if b, ok := m.boxes[c.BoxID]; !ok || b.AdminID != adminID {
		return nil, repository.ErrComplaintNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListComplaintsByBox(_ context.Context, boxID string) ([]*model.Complaint, error) {
	return m.filterComplaints(func(c *model.Complaint) bool { return c.BoxID == boxID }), nil
}

func (m *memStore) ListComplaintsByTokens(_ context.Context, boxID string, tokens []string) ([]*model.Complaint, error) {
	return m.filterComplaints(func(c *model.Complaint) bool {
		return c.BoxID == boxID && slices.Contains(tokens, c.Token)
	}), nil
}

func (m *memStore) filterComplaints(keep func(*model.Complaint) bool) []*model.Complaint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Complaint{}
	for _, c := range m.complaints {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.Complaint) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (m *memStore) UpdateComplaintStatus(_ context.Context, id string, status model.Status) (*model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (m *memStore) SetComplaintReply(_ context.Context, id, reply string) (*model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	now := time.Now().UTC()
	c.AdminReply = reply
	c.RepliedAt = &now
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteComplaint(_ context.Context, id string) (*model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	delete(m.complaints, id)
	return c, nil
}

func (m *memStore) ComplaintTokenExists(_ context.Context, token string) (bool, error) {
	_, err := m.GetComplaintByToken(context.Background(), token)
	return err == nil, nil
}

func (m *memStore) CreateFeedback(_ context.Context, f *model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, f)
	return nil
}

func (m *memStore) ListFeedback(_ context.Context, boxID string, limit int) ([]*model.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Feedback{}
	for i := len(m.feedback) - 1; i >= 0 && len(out) < limit; i-- {
		if m.feedback[i].BoxID == boxID {
			out = append(out, m.feedback[i])
		}
	}
	return out, nil
}

func (m *memStore) RecomputeDays(_ context.Context, keys []model.DayKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recomputed = append(m.recomputed, keys...)
	return nil
}

func (m *memStore) CreateProfile(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if existing.Email == p.Email {
			return repository.ErrEmailExists
		}
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *memStore) GetProfileByID(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrProfileNotFound
}

func (m *memStore) UpdateUsername(_ context.Context, id, username string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	p.Username = username
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return repository.ErrProfileNotFound
	}
	p.PasswordHash = hash
	return nil
}

func (m *memStore) DeleteAccount(_ context.Context, id string) (*repository.AccountDeletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return nil, repository.ErrProfileNotFound
	}
	delete(m.profiles, id)
	out := &repository.AccountDeletion{}
	for bid, b := range m.boxes {
		if b.AdminID != id {
			continue
		}
		out.BoxTokens = append(out.BoxTokens, b.Token)
		for cid, c := range m.complaints {
			if c.BoxID == bid {
				if c.Attachment != nil {
					out.AttachmentKeys = append(out.AttachmentKeys, c.Attachment.Key)
				}
				delete(m.complaints, cid)
			}
		}
		delete(m.boxes, bid)
	}
	return out, nil
}

// memCache implements BoxCache.
type memCache struct {
	mu       sync.Mutex
	boxes    map[string]*model.Box
	negative map[string]bool
	deleted  []string
}

func newMemCache() *memCache {
	return &memCache{boxes: map[string]*model.Box{}, negative: map[string]bool{}}
}

func (c *memCache) GetBox(_ context.Context, token string) (*model.Box, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.boxes[token]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *b
	return &cp, nil
}

func (c *memCache) SetBox(_ context.Context, box *model.Box) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *box
	c.boxes[box.Token] = &cp
	delete(c.negative, box.Token)
	return nil
}

func (c *memCache) DeleteBox(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.boxes, token)
	c.deleted = append(c.deleted, token)
	return nil
}

func (c *memCache) IsNegativelyCached(_ context.Context, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negative[token], nil
}

func (c *memCache) SetNegativeCache(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[token] = true
	return nil
}

// memSessions implements SessionStore.
type memSessions struct {
	mu     sync.Mutex
	active map[string]string // session id -> user id
}

func newMemSessions() *memSessions {
	return &memSessions{active: map[string]string{}}
}

func (s *memSessions) RegisterSession(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[session.ID] = session.UserID
	return nil
}

func (s *memSessions) CheckSession(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[session.ID] != session.UserID {
		return cache.ErrSessionRevoked
	}
	return nil
}

func (s *memSessions) RevokeSession(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, session.ID)
	return nil
}

func (s *memSessions) RevokeUserSessions(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, uid := range s.active {
		if uid == userID {
			delete(s.active, id)
			n++
		}
	}
	return n, nil
}

// memObjects implements storage.Store.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (o *memObjects) Put(_ context.Context, key string, r io.Reader, _ string) error {
	if o.putErr != nil {
		return o.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o *memObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(o.objects, key)
	return nil
}

func (o *memObjects) URL(key string) string {
	return "http://files.test/files/" + key
}

func (o *memObjects) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}

// recordingPublisher implements EventPublisher.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BoxEvent
}

func (p *recordingPublisher) PublishAsync(event model.BoxEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// stubLimiter implements GateLimiter.
type stubLimiter struct {
	allowed bool
	calls   int
}

func (l *stubLimiter) CheckGateRateLimit(context.Context, string, string, int, int) (*cache.RateLimitResult, error) {
	l.calls++
	return &cache.RateLimitResult{Allowed: l.allowed, RetryAfter: 30 * time.Second}, nil
}
