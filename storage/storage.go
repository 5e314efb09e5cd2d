package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"colist-api/domain"
)

// listsPartition is the single partition holding every list document. Tasks
// partition by their parent list id instead, so a list's subcollection is one
// partition scan.
const listsPartition = "lists"

// queue is the subset of the azqueue client used for purge jobs.
type queue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	listTable  *aztables.Client
	taskTable  *aztables.Client
	purgeQueue queue
}

// New creates a Storage instance from the given connection string.
func New(connStr, listsTable, tasksTable, purgeQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	lt := svc.NewClient(listsTable)
	tt := svc.NewClient(tasksTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	pq, err := azqueue.NewQueueClientFromConnectionString(connStr, purgeQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{listTable: lt, taskTable: tt, purgeQueue: pq}, nil
}

type listEntity struct {
	aztables.Entity
	Title         string `json:"Title"`
	OwnerID       string `json:"OwnerId"`
	Collaborators string `json:"Collaborators"`
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Completed   bool   `json:"Completed"`
}

func decodeListEntity(data []byte) (domain.TodoList, error) {
	var ent listEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.TodoList{}, err
	}
	collaborators := []domain.Collaborator{}
	if ent.Collaborators != "" {
		if err := json.Unmarshal([]byte(ent.Collaborators), &collaborators); err != nil {
			return domain.TodoList{}, err
		}
	}
	return domain.TodoList{
		ID:            ent.RowKey,
		Title:         ent.Title,
		OwnerID:       ent.OwnerID,
		Collaborators: collaborators,
	}, nil
}

func encodeListEntity(id string, list domain.TodoList) ([]byte, error) {
	collaborators := list.Collaborators
	if collaborators == nil {
		collaborators = []domain.Collaborator{}
	}
	encoded, err := json.Marshal(collaborators)
	if err != nil {
		return nil, err
	}
	return json.Marshal(listEntity{
		Entity:        aztables.Entity{PartitionKey: listsPartition, RowKey: id},
		Title:         list.Title,
		OwnerID:       list.OwnerID,
		Collaborators: string(encoded),
	})
}

// entityETag pulls the concurrency tag out of a raw table entity payload.
func entityETag(data []byte) azcore.ETag {
	var meta struct {
		ETag string `json:"odata.etag"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return azcore.ETagAny
	}
	if meta.ETag == "" {
		return azcore.ETagAny
	}
	return azcore.ETag(meta.ETag)
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// FetchLists retrieves every list document in store order.
func (s *Storage) FetchLists(ctx context.Context) ([]domain.TodoList, error) {
	filter := "PartitionKey eq '" + listsPartition + "'"
	pager := s.listTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	lists := []domain.TodoList{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			list, err := decodeListEntity(e)
			if err != nil {
				return nil, err
			}
			lists = append(lists, list)
		}
	}
	return lists, nil
}

// FetchList retrieves one list document. A missing document is reported via
// the boolean, not an error.
func (s *Storage) FetchList(ctx context.Context, listID string) (domain.TodoList, bool, error) {
	resp, err := s.listTable.GetEntity(ctx, listsPartition, listID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return domain.TodoList{}, false, nil
		}
		return domain.TodoList{}, false, err
	}
	list, err := decodeListEntity(resp.Value)
	if err != nil {
		return domain.TodoList{}, false, err
	}
	return list, true, nil
}

// CreateList writes a new list document and returns its store-assigned id.
func (s *Storage) CreateList(ctx context.Context, list domain.TodoList) (string, error) {
	id := uuid.NewString()
	payload, err := encodeListEntity(id, list)
	if err != nil {
		return "", err
	}
	if _, err := s.listTable.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateListTitle merges the title field only; other fields stay untouched.
func (s *Storage) UpdateListTitle(ctx context.Context, listID, title string) error {
	payload, err := json.Marshal(map[string]any{
		"PartitionKey": listsPartition,
		"RowKey":       listID,
		"Title":        title,
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.listTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}

// mergeCollaborator appends with set-union semantics: an identical pair is
// not re-added. The second result reports whether anything changed.
func mergeCollaborator(collaborators []domain.Collaborator, c domain.Collaborator) ([]domain.Collaborator, bool) {
	for _, existing := range collaborators {
		if existing == c {
			return collaborators, false
		}
	}
	return append(collaborators, c), true
}

// AddCollaborator appends the collaborator to the list's array field. The
// read-merge-write cycle is guarded by the entity ETag and retried on
// concurrent modification, which gives the append atomic set-union semantics.
func (s *Storage) AddCollaborator(ctx context.Context, listID string, c domain.Collaborator) error {
	var lastErr error
	for attempt := 0; attempt < 4; attempt++ {
		resp, err := s.listTable.GetEntity(ctx, listsPartition, listID, nil)
		if err != nil {
			return err
		}
		list, err := decodeListEntity(resp.Value)
		if err != nil {
			return err
		}
		merged, changed := mergeCollaborator(list.Collaborators, c)
		if !changed {
			return nil
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]any{
			"PartitionKey":  listsPartition,
			"RowKey":        listID,
			"Collaborators": string(encoded),
		})
		if err != nil {
			return err
		}
		et := entityETag(resp.Value)
		_, err = s.listTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
			IfMatch:    &et,
			UpdateMode: aztables.UpdateModeMerge,
		})
		if err == nil {
			return nil
		}
		if !isStatus(err, 412) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// DeleteList removes the list document and enqueues a purge of its task
// partition. The tasks are cleaned up asynchronously by the PurgeWorker.
func (s *Storage) DeleteList(ctx context.Context, listID string) error {
	if _, err := s.listTable.DeleteEntity(ctx, listsPartition, listID, nil); err != nil {
		return err
	}
	return s.enqueuePurge(ctx, listID)
}

func (s *Storage) enqueuePurge(ctx context.Context, listID string) error {
	if s.purgeQueue == nil {
		return nil
	}
	payload, err := json.Marshal(purgeJob{ListID: listID})
	if err != nil {
		return err
	}
	_, err = s.purgeQueue.EnqueueMessage(ctx, string(payload), nil)
	return err
}

// FetchTasks retrieves all tasks under the given list in store order.
func (s *Storage) FetchTasks(ctx context.Context, listID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + listID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, domain.Task{
				ID:          ent.RowKey,
				Title:       ent.Title,
				Description: ent.Description,
				Completed:   ent.Completed,
			})
		}
	}
	return tasks, nil
}

// CreateTask writes a new task document under the list and returns its id.
func (s *Storage) CreateTask(ctx context.Context, listID string, task domain.Task) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(taskEntity{
		Entity:      aztables.Entity{PartitionKey: listID, RowKey: id},
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.Completed,
	})
	if err != nil {
		return "", err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTask merges the title and description fields only.
func (s *Storage) UpdateTask(ctx context.Context, listID, taskID, title, description string) error {
	payload, err := json.Marshal(map[string]any{
		"PartitionKey": listID,
		"RowKey":       taskID,
		"Title":        title,
		"Description":  description,
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}

// SetTaskCompleted merges the completion flag only.
func (s *Storage) SetTaskCompleted(ctx context.Context, listID, taskID string, completed bool) error {
	payload, err := json.Marshal(map[string]any{
		"PartitionKey": listID,
		"RowKey":       taskID,
		"Completed":    completed,
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}

// DeleteTask removes the task document.
func (s *Storage) DeleteTask(ctx context.Context, listID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, listID, taskID, nil)
	return err
}

// purgeTasks deletes every task row in the list's partition.
func (s *Storage) purgeTasks(ctx context.Context, listID string) error {
	tasks, err := s.FetchTasks(ctx, listID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if _, err := s.taskTable.DeleteEntity(ctx, listID, t.ID, nil); err != nil && !isStatus(err, 404) {
			return err
		}
	}
	return nil
}
