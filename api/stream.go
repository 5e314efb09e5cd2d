package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"colist-api/collab"
	"colist-api/domain"
	"colist-api/identity"
)

type listStatePayload struct {
	Lists   []domain.TodoList `json:"lists"`
	Loading bool              `json:"loading"`
	Error   string            `json:"error,omitempty"`
}

type taskStatePayload struct {
	Tasks   []domain.Task `json:"tasks"`
	Role    domain.Role   `json:"role"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
}

// streamAuthHeader resolves the auth header for SSE requests. EventSource
// cannot set headers, so the token may arrive as a query parameter instead.
func streamAuthHeader(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if h == "" {
		if token := c.QueryParam("token"); token != "" {
			h = "Bearer " + token
		}
	}
	return h
}

func prepareStream(c echo.Context) (http.Flusher, error) {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, c.String(http.StatusInternalServerError, "stream unsupported")
	}
	return flusher, nil
}

func writeEvent(c echo.Context, flusher http.Flusher, payload any) error {
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamLists serves a live view of the caller's lists. Each connection runs
// its own sync session; every state change goes out as one SSE event carrying
// the full filtered snapshot.
func streamLists(store Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newStreamRequestMetrics(logger, "/api/lists/stream")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		user, authErr := metrics.Authenticate(auth, streamAuthHeader(c))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		flusher, prepErr := prepareStream(c)
		if flusher == nil {
			metrics.SetErrorStage("flush_unsupported")
			err = prepErr
			return err
		}

		ctx := c.Request().Context()
		session := identity.NewSession()
		states, cancel := session.Subscribe()
		defer cancel()
		session.Set(user)

		manager := collab.NewListManager(store, logger)
		go manager.Run(ctx, states)

		for {
			select {
			case <-ctx.Done():
				return nil
			case st := <-manager.States():
				payload := listStatePayload{Lists: st.Lists, Loading: st.Loading}
				if payload.Lists == nil {
					payload.Lists = []domain.TodoList{}
				}
				if st.Err != nil {
					payload.Error = st.Err.Error()
				}
				if err = writeEvent(c, flusher, payload); err != nil {
					metrics.SetErrorStage("write")
					return err
				}
				metrics.SnapshotDelivered()
			}
		}
	}
}

// streamTasks serves a live view of one list: its tasks and the caller's
// role. Deleting the list ends the stream after a final not-found event.
func streamTasks(store Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		listID := c.Param("id")
		metrics := newStreamRequestMetrics(logger, "/api/lists/:id/tasks/stream")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		user, authErr := metrics.Authenticate(auth, streamAuthHeader(c))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		ctx := c.Request().Context()
		_, status, accessErr := resolveAccess(ctx, store, listID, user)
		if accessErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(accessErr)
			err = c.String(status, accessErr.Error())
			return err
		}
		if status != http.StatusOK {
			metrics.SetErrorStage("access")
			err = c.NoContent(status)
			return err
		}
		flusher, prepErr := prepareStream(c)
		if flusher == nil {
			metrics.SetErrorStage("flush_unsupported")
			err = prepErr
			return err
		}

		session := identity.NewSession()
		states, cancel := session.Subscribe()
		defer cancel()
		session.Set(user)

		manager := collab.NewTaskManager(store, logger)
		go manager.Run(ctx, states)
		manager.SwitchList(ctx, listID)

		for {
			select {
			case <-ctx.Done():
				return nil
			case st := <-manager.States():
				payload := taskStatePayload{Tasks: st.Tasks, Role: st.Role, Loading: st.Loading}
				if payload.Tasks == nil {
					payload.Tasks = []domain.Task{}
				}
				if st.Err != nil {
					payload.Error = st.Err.Error()
				}
				if err = writeEvent(c, flusher, payload); err != nil {
					metrics.SetErrorStage("write")
					return err
				}
				metrics.SnapshotDelivered()
			}
		}
	}
}
