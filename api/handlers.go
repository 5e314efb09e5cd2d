package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"colist-api/collab"
	"colist-api/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, auth Authenticator, logger *log.Logger) {
	e.GET("/healthz", healthz())

	e.GET("/api/lists", getLists(store, auth))
	e.POST("/api/lists", postList(store, auth))
	e.PATCH("/api/lists/:id", patchList(store, auth))
	e.DELETE("/api/lists/:id", deleteList(store, auth))
	e.POST("/api/lists/:id/collaborators", postCollaborator(store, auth))

	e.GET("/api/lists/:id/tasks", getTasks(store, auth))
	e.POST("/api/lists/:id/tasks", postTask(store, auth))
	e.PATCH("/api/lists/:id/tasks/:taskId", patchTask(store, auth))
	e.DELETE("/api/lists/:id/tasks/:taskId", deleteTask(store, auth))

	e.GET("/api/lists/stream", streamLists(store, auth, logger))
	e.GET("/api/lists/:id/tasks/stream", streamTasks(store, auth, logger))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type listsResponse struct {
	Lists []domain.TodoList `json:"lists"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Role  domain.Role   `json:"role"`
}

type createdResponse struct {
	ID string `json:"id"`
}

type listRequest struct {
	Title string `json:"title"`
}

type collaboratorRequest struct {
	Email string `json:"email"`
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// taskPatch distinguishes a completion flip from an edit: a body carrying only
// completed toggles, a body carrying title edits. Pointer fields tell absent
// from zero.
type taskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// writeStoreError maps store failures onto HTTP responses.
func writeStoreError(c echo.Context, err error) error {
	var verr *collab.ValidationError
	if errors.As(err, &verr) {
		return c.String(http.StatusBadRequest, verr.Error())
	}
	var nferr *collab.NotFoundError
	if errors.As(err, &nferr) {
		return c.NoContent(http.StatusNotFound)
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

// resolveAccess loads the list document and derives the caller's role. A
// missing list and a list the caller has no role on are indistinguishable to
// the caller.
func resolveAccess(ctx context.Context, store Store, listID string, user domain.User) (domain.Role, int, error) {
	list, exists, err := store.GetList(ctx, listID)
	if err != nil {
		return domain.RoleNone, http.StatusInternalServerError, err
	}
	if !exists {
		return domain.RoleNone, http.StatusNotFound, nil
	}
	role := domain.ResolveRole(list, &user)
	if role == domain.RoleNone {
		return domain.RoleNone, http.StatusNotFound, nil
	}
	return role, http.StatusOK, nil
}

func requireRole(c echo.Context, store Store, auth Authenticator, listID string, want domain.Role) (domain.User, bool, error) {
	user, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return domain.User{}, false, c.String(http.StatusUnauthorized, err.Error())
	}
	role, status, err := resolveAccess(c.Request().Context(), store, listID, user)
	if err != nil {
		c.Logger().Error(err)
		return domain.User{}, false, c.String(status, err.Error())
	}
	if status != http.StatusOK {
		return domain.User{}, false, c.NoContent(status)
	}
	if want == domain.RoleAdmin && role != domain.RoleAdmin {
		return domain.User{}, false, c.NoContent(http.StatusForbidden)
	}
	return user, true, nil
}

func getLists(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		user, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		w, err := store.WatchLists(ctx)
		if err != nil {
			return writeStoreError(c, err)
		}
		defer w.Close()
		select {
		case snap := <-w.Snapshots():
			if snap.Err != nil {
				return writeStoreError(c, snap.Err)
			}
			return c.JSON(http.StatusOK, listsResponse{Lists: collab.FilterVisible(snap.Lists, user)})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func postList(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		user, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req listRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		title, err := collab.ValidateTitle(req.Title)
		if err != nil {
			return writeStoreError(c, err)
		}
		id, err := store.CreateList(ctx, domain.TodoList{Title: title, OwnerID: user.ID})
		if err != nil {
			return writeStoreError(c, err)
		}
		return c.JSON(http.StatusCreated, createdResponse{ID: id})
	}
}

func patchList(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		listID := c.Param("id")
		if _, ok, err := requireRole(c, store, auth, listID, domain.RoleAdmin); !ok {
			return err
		}
		var req listRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		title, err := collab.ValidateTitle(req.Title)
		if err != nil {
			return writeStoreError(c, err)
		}
		if err := store.UpdateListTitle(c.Request().Context(), listID, title); err != nil {
			return writeStoreError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteList(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		listID := c.Param("id")
		if _, ok, err := requireRole(c, store, auth, listID, domain.RoleAdmin); !ok {
			return err
		}
		if err := store.DeleteList(c.Request().Context(), listID); err != nil {
			return writeStoreError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postCollaborator(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		listID := c.Param("id")
		if _, ok, err := requireRole(c, store, auth, listID, domain.RoleAdmin); !ok {
			return err
		}
		var req collaboratorRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		email, err := collab.ValidateEmail(req.Email)
		if err != nil {
			return writeStoreError(c, err)
		}
		col := domain.Collaborator{Email: domain.NormalizeEmail(email), Role: domain.RoleViewer}
		if err := store.AddCollaborator(c.Request().Context(), listID, col); err != nil {
			return writeStoreError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getTasks(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		listID := c.Param("id")
		user, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		role, status, err := resolveAccess(ctx, store, listID, user)
		if err != nil {
			c.Logger().Error(err)
			return c.String(status, err.Error())
		}
		if status != http.StatusOK {
			return c.NoContent(status)
		}
		w, err := store.WatchTasks(ctx, listID)
		if err != nil {
			return writeStoreError(c, err)
		}
		defer w.Close()
		select {
		case snap := <-w.Snapshots():
			if snap.Err != nil {
				return writeStoreError(c, snap.Err)
			}
			return c.JSON(http.StatusOK, tasksResponse{Tasks: snap.Tasks, Role: role})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func postTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		listID := c.Param("id")
		if _, ok, err := requireRole(c, store, auth, listID, domain.RoleAdmin); !ok {
			return err
		}
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		title, err := collab.ValidateTitle(req.Title)
		if err != nil {
			return writeStoreError(c, err)
		}
		id, err := store.CreateTask(c.Request().Context(), listID, domain.Task{Title: title, Description: req.Description})
		if err != nil {
			return writeStoreError(c, err)
		}
		return c.JSON(http.StatusCreated, createdResponse{ID: id})
	}
}

func patchTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		listID := c.Param("id")
		taskID := c.Param("taskId")
		var req taskPatch
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		// A completion flip is open to every collaborator; editing the
		// title or description stays admin-only.
		if req.Completed != nil && req.Title == nil && req.Description == nil {
			if _, ok, err := requireRole(c, store, auth, listID, domain.RoleViewer); !ok {
				return err
			}
			if err := store.SetTaskCompleted(c.Request().Context(), listID, taskID, *req.Completed); err != nil {
				return writeStoreError(c, err)
			}
			return c.NoContent(http.StatusNoContent)
		}
		if req.Title == nil {
			return c.String(http.StatusBadRequest, "title is required")
		}
		if _, ok, err := requireRole(c, store, auth, listID, domain.RoleAdmin); !ok {
			return err
		}
		title, err := collab.ValidateTitle(*req.Title)
		if err != nil {
			return writeStoreError(c, err)
		}
		description := ""
		if req.Description != nil {
			description = *req.Description
		}
		if err := store.UpdateTask(c.Request().Context(), listID, taskID, title, description); err != nil {
			return writeStoreError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		listID := c.Param("id")
		if _, ok, err := requireRole(c, store, auth, listID, domain.RoleAdmin); !ok {
			return err
		}
		if err := store.DeleteTask(c.Request().Context(), listID, c.Param("taskId")); err != nil {
			return writeStoreError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
