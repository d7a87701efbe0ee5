package dashboard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Registry 按 id 保存会话，空闲超时的会话由定时任务回收
type Registry struct {
	mu       sync.Mutex
	env      *Env
	sessions map[string]*entry
	now      func() time.Time
}

func NewRegistry(env *Env) *Registry {
	return &Registry{
		env:      env,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// GetOrCreate 返回 id 对应的会话并刷新访问时间
// id 不存在(例如已被回收)时用新的 uuid 创建会话，第二个返回值为 true
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[id]; ok {
		e.lastSeen = r.now()
		return e.session, false
	}

	newID := uuid.NewString()
	s := NewSession(newID, r.env)
	r.sessions[newID] = &entry{session: s, lastSeen: r.now()}
	r.env.Log.Info(fmt.Sprintf("session %s created", newID))
	return s, true
}

// Get 只查找，不刷新访问时间
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Touch 刷新访问时间
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if ok {
		e.lastSeen = r.now()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict 回收空闲超过 ttl 的会话并删除其图片，返回被回收的 id
func (r *Registry) Evict(ttl time.Duration) []string {
	r.mu.Lock()
	cutoff := r.now().Add(-ttl)
	var expired []*Session
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		ids = append(ids, s.ID)
		r.removePlot(s)
	}
	if len(ids) > 0 {
		r.env.Log.Info(fmt.Sprintf("evicted %d idle sessions", len(ids)))
	}
	return ids
}

// Close 删除所有会话及其图片
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		r.removePlot(e.session)
	}
}

func (r *Registry) removePlot(s *Session) {
	// 等待该会话正在进行的重算结束
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.PlotPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.env.Log.Warning(fmt.Sprintf("remove plot for session %s: %v", s.ID, err))
	}
}
