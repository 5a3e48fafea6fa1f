// Package api exposes the bridge over HTTP: snapshot and entity reads,
// task actions, forced refresh and an SSE stream of snapshots.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"choreshore-bridge/backend"
	"choreshore-bridge/coordinator"
	"choreshore-bridge/entities"
)

const (
	actionBodyMaxSize    = 4 * 1024
	headerIdempotencyKey = "Idempotency-Key"

	routeComplete = "/api/tasks/:id/complete"
	routeSkip     = "/api/tasks/:id/skip"
)

// Register wires up all API routes on the provided Echo instance. A nil
// auth leaves the routes unauthenticated and a nil dedupe disables
// idempotency keys.
func Register(e *echo.Echo, svc Service, auth Authenticator, dedupe Deduper, builder entities.Builder, broker *Broker, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.GET("/api/snapshot", getSnapshot(svc, auth))
	e.GET("/api/entities", getEntities(svc, auth, builder))
	e.POST(routeComplete, postAction(svc, auth, dedupe, logger, routeComplete, "complete"))
	e.POST(routeSkip, postAction(svc, auth, dedupe, logger, routeSkip, "skip"))
	e.POST("/api/refresh", postRefresh(svc, auth))
	if broker != nil {
		e.GET("/api/stream", streamSnapshots(svc, auth, broker))
	}
	e.GET("/healthz", healthz(svc))
}

type errorResponse struct {
	Error string `json:"error"`
}

type actionRequest struct {
	Reason *string `json:"reason"`
	UserID string  `json:"user_id"`
}

type actionResponse struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type entityView struct {
	EntityID string `json:"entity_id"`
	entities.Entity
}

type entitiesResponse struct {
	Entities []entityView `json:"entities"`
}

type healthResponse struct {
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
	Degraded    []string  `json:"degraded,omitempty"`
}

// authenticate returns the subject of the request, or "" when auth is off.
func authenticate(c echo.Context, auth Authenticator) (string, error) {
	if auth == nil {
		return "", nil
	}
	return auth.UserIDFromAuthHeader(authorizationFrom(c))
}

var errNoSnapshot = errorResponse{Error: "no snapshot available yet"}

func healthz(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap := svc.Snapshot()
		if snap == nil {
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "starting"})
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", LastUpdated: snap.LastUpdated, Degraded: snap.Degraded})
	}
}

func getSnapshot(svc Service, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authenticate(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		snap := svc.Snapshot()
		if snap == nil {
			return c.JSON(http.StatusServiceUnavailable, errNoSnapshot)
		}
		return c.JSON(http.StatusOK, snap)
	}
}

func getEntities(svc Service, auth Authenticator, builder entities.Builder) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authenticate(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var kind entities.Kind
		if raw := c.QueryParam("kind"); raw != "" {
			k, ok := entities.ParseKind(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown entity kind"})
			}
			kind = k
		}
		snap := svc.Snapshot()
		if snap == nil {
			return c.JSON(http.StatusServiceUnavailable, errNoSnapshot)
		}
		list := builder.Build(snap, time.Now())
		resp := entitiesResponse{Entities: make([]entityView, 0, len(list))}
		for _, e := range list {
			if kind != "" && e.Kind != kind {
				continue
			}
			resp.Entities = append(resp.Entities, entityView{EntityID: e.EntityID(), Entity: e})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func postRefresh(svc Service, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authenticate(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		snap, err := svc.Refresh(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(statusForError(err), errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, snap)
	}
}

func postAction(svc Service, auth Authenticator, dedupe Deduper, logger *log.Logger, route, action string) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		taskID := strings.TrimSpace(c.Param("id"))
		metrics, ctx := newActionRequestMetrics(c.Request().Context(), logger, route, action, taskID)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		subject, authErr := authenticate(c, auth)
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return c.String(http.StatusUnauthorized, authErr.Error())
		}
		if taskID == "" {
			metrics.SetErrorStage("invalid_task")
			return c.JSON(http.StatusBadRequest, actionResponse{Error: "missing task id"})
		}

		var body actionRequest
		if decodeErr := decodeOptionalBody(c.Request().Body, &body); decodeErr != nil {
			metrics.SetErrorStage("invalid_body")
			return c.JSON(http.StatusBadRequest, actionResponse{Error: "invalid body"})
		}

		requested := subject
		if requested == "" {
			requested = body.UserID
		}
		actor := svc.ActingUser(requested)
		if actor == "" {
			metrics.SetErrorStage("actor")
			return c.JSON(http.StatusBadRequest, actionResponse{Error: coordinator.ErrNoActor.Error()})
		}

		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		metrics.SetKeyProvided(key != "")
		if key != "" && dedupe != nil {
			key = action + ":" + taskID + ":" + key
			added, dedupeErr := dedupe.Add(ctx, actor, key)
			if dedupeErr != nil {
				metrics.SetErrorStage("dedupe")
				c.Logger().Errorf("dedupe add failed: %v", dedupeErr)
				return c.JSON(http.StatusServiceUnavailable, actionResponse{Error: "idempotency store unavailable"})
			}
			if !added {
				metrics.SetDuplicate(true)
				return c.JSON(http.StatusOK, actionResponse{Success: true, Duplicate: true, TaskID: taskID})
			}
		}

		relayStart := time.Now()
		var relayErr error
		switch action {
		case "skip":
			relayErr = svc.SkipTask(ctx, taskID, actor, body.Reason)
		default:
			relayErr = svc.CompleteTask(ctx, taskID, actor)
		}
		metrics.ObserveRelay(time.Since(relayStart))
		if relayErr != nil {
			if key != "" && dedupe != nil {
				// Background context so the key is released even when the client went away.
				rmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if rmErr := dedupe.Remove(rmCtx, actor, key); rmErr != nil {
					c.Logger().Errorf("dedupe remove failed: %v", rmErr)
				}
				cancel()
			}
			metrics.SetErrorStage("relay")
			return c.JSON(statusForError(relayErr), actionResponse{TaskID: taskID, Error: relayErr.Error()})
		}
		return c.JSON(http.StatusOK, actionResponse{Success: true, TaskID: taskID})
	}
}

func streamSnapshots(svc Service, auth Authenticator, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authenticate(c, auth); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		snap := svc.Snapshot()
		for {
			if snap != nil {
				data, err := sonic.Marshal(snap)
				if err != nil {
					c.Logger().Error(err)
					return err
				}
				if _, err := c.Response().Write([]byte("event: snapshot\ndata: ")); err != nil {
					return err
				}
				if _, err := c.Response().Write(data); err != nil {
					return err
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return err
				}
				flusher.Flush()
			}
			select {
			case <-ctx.Done():
				return nil
			case snap = <-ch:
			}
		}
	}
}

// decodeOptionalBody decodes a JSON object into out. An empty body is valid.
func decodeOptionalBody(r io.Reader, out any) error {
	if r == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r, actionBodyMaxSize+1))
	if err != nil {
		return err
	}
	if len(data) > actionBodyMaxSize {
		return errors.New("body too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, out)
}

func statusForError(err error) int {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, coordinator.ErrNoActor):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
