package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"colist-api/domain"
)

type backend interface {
	FetchLists(ctx context.Context) ([]domain.TodoList, error)
	FetchList(ctx context.Context, listID string) (domain.TodoList, bool, error)
	FetchTasks(ctx context.Context, listID string) ([]domain.Task, error)

	CreateList(ctx context.Context, list domain.TodoList) (string, error)
	UpdateListTitle(ctx context.Context, listID, title string) error
	AddCollaborator(ctx context.Context, listID string, c domain.Collaborator) error
	DeleteList(ctx context.Context, listID string) error

	CreateTask(ctx context.Context, listID string, task domain.Task) (string, error)
	UpdateTask(ctx context.Context, listID, taskID, title, description string) error
	SetTaskCompleted(ctx context.Context, listID, taskID string, completed bool) error
	DeleteTask(ctx context.Context, listID, taskID string) error
}

// Cache wraps a backend with Redis-backed caching for snapshot reads. Writes
// pass through and evict the affected snapshot before returning, so watchers
// triggered by the change event never re-read a stale cache entry.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchLists(ctx context.Context) ([]domain.TodoList, error) {
	if lists, ok := c.loadLists(ctx); ok {
		return lists, nil
	}
	lists, err := c.base.FetchLists(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listsCacheKey(), lists)
	return lists, nil
}

// FetchList is deliberately uncached: the document read resolves roles, and
// serving a stale permission set from cache would delay revocation.
func (c *Cache) FetchList(ctx context.Context, listID string) (domain.TodoList, bool, error) {
	return c.base.FetchList(ctx, listID)
}

func (c *Cache) FetchTasks(ctx context.Context, listID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasks(ctx, listID); ok {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasks(ctx, listID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(listID), tasks)
	return tasks, nil
}

func (c *Cache) CreateList(ctx context.Context, list domain.TodoList) (string, error) {
	id, err := c.base.CreateList(ctx, list)
	if err != nil {
		return "", err
	}
	c.evict(ctx, listsCacheKey())
	return id, nil
}

func (c *Cache) UpdateListTitle(ctx context.Context, listID, title string) error {
	if err := c.base.UpdateListTitle(ctx, listID, title); err != nil {
		return err
	}
	c.evict(ctx, listsCacheKey())
	return nil
}

func (c *Cache) AddCollaborator(ctx context.Context, listID string, col domain.Collaborator) error {
	if err := c.base.AddCollaborator(ctx, listID, col); err != nil {
		return err
	}
	c.evict(ctx, listsCacheKey())
	return nil
}

func (c *Cache) DeleteList(ctx context.Context, listID string) error {
	if err := c.base.DeleteList(ctx, listID); err != nil {
		return err
	}
	c.evict(ctx, listsCacheKey(), tasksCacheKey(listID))
	return nil
}

func (c *Cache) CreateTask(ctx context.Context, listID string, task domain.Task) (string, error) {
	id, err := c.base.CreateTask(ctx, listID, task)
	if err != nil {
		return "", err
	}
	c.evict(ctx, tasksCacheKey(listID))
	return id, nil
}

func (c *Cache) UpdateTask(ctx context.Context, listID, taskID, title, description string) error {
	if err := c.base.UpdateTask(ctx, listID, taskID, title, description); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(listID))
	return nil
}

func (c *Cache) SetTaskCompleted(ctx context.Context, listID, taskID string, completed bool) error {
	if err := c.base.SetTaskCompleted(ctx, listID, taskID, completed); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(listID))
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, listID, taskID string) error {
	if err := c.base.DeleteTask(ctx, listID, taskID); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(listID))
	return nil
}

func (c *Cache) loadLists(ctx context.Context) ([]domain.TodoList, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, listsCacheKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, listsCacheKey()).Err()
		}
		return nil, false
	}
	var lists []domain.TodoList
	if err := json.Unmarshal(data, &lists); err != nil {
		_ = c.redis.Del(ctx, listsCacheKey()).Err()
		return nil, false
	}
	return lists, true
}

func (c *Cache) loadTasks(ctx context.Context, listID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(listID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, tasksCacheKey(listID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(listID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func listsCacheKey() string {
	return "lists:snapshot"
}

func tasksCacheKey(listID string) string {
	return "tasks:" + listID
}
