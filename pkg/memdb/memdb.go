// Пакет memdb реализует [domain.Repository] в памяти.
// Используется в тестах API и для запуска без БД.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rtemka/blog/domain"
)

type MemDB struct {
	mu          sync.RWMutex
	posts       map[int64]domain.Post
	comments    map[int64]domain.Comment
	nextPost    int64
	nextComment int64
}

// New создает новый экземпляр in-memory хранилища.
func New() *MemDB {
	return &MemDB{
		posts:    make(map[int64]domain.Post),
		comments: make(map[int64]domain.Comment),
	}
}

func (m *MemDB) Close() error { return nil }

func (m *MemDB) AddPost(_ context.Context, p *domain.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextPost++
	p.ID = m.nextPost
	p.CreatedAt = time.Now().Unix()
	m.posts[p.ID] = *p

	return nil
}

func (m *MemDB) Posts(_ context.Context) ([]domain.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	posts := make([]domain.Post, 0, len(m.posts))
	for _, p := range m.posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ID > posts[j].ID
	})

	return posts, nil
}

func (m *MemDB) Post(_ context.Context, id int64) (domain.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok {
		return p, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}

	return p, nil
}

func (m *MemDB) AddComment(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[c.PostID]; !ok {
		return fmt.Errorf("post %d: %w", c.PostID, domain.ErrNotFound)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	m.nextComment++
	c.ID = m.nextComment
	c.CreatedAt = time.Now().Unix()
	c.Status = domain.Pending
	m.comments[c.ID] = *c

	return nil
}

func (m *MemDB) Comments(_ context.Context, postID int64) ([]domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.posts[postID]; !ok {
		return nil, fmt.Errorf("post %d: %w", postID, domain.ErrNotFound)
	}

	var coms []domain.Comment
	for _, c := range m.comments {
		if c.PostID == postID && c.Status == domain.Approved {
			coms = append(coms, c)
		}
	}
	sort.Slice(coms, func(i, j int) bool {
		return coms[i].ID < coms[j].ID
	})

	return coms, nil
}

func (m *MemDB) Pending(_ context.Context) ([]domain.PendingComment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var coms []domain.PendingComment
	for _, c := range m.comments {
		if c.Status != domain.Pending {
			continue
		}
		coms = append(coms, domain.PendingComment{
			Comment:   c,
			PostTitle: m.posts[c.PostID].Title,
		})
	}
	sort.Slice(coms, func(i, j int) bool {
		if coms[i].CreatedAt != coms[j].CreatedAt {
			return coms[i].CreatedAt < coms[j].CreatedAt
		}
		return coms[i].ID < coms[j].ID
	})

	return coms, nil
}

func (m *MemDB) Approve(_ context.Context, id int64) (domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return c, fmt.Errorf("comment %d: %w", id, domain.ErrNotFound)
	}

	if c.Status != domain.Approved {
		c.Status = domain.Approved
		m.comments[id] = c
	}

	return c, nil
}
