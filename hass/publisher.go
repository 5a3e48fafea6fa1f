// Package hass pushes entity states into a Home Assistant instance over its
// REST API.
package hass

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"choreshore-bridge/domain"
	"choreshore-bridge/entities"
)

const (
	statesPath   = "/api/states/"
	maxErrorBody = 1024
)

type statePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Publisher writes the entity set of every snapshot to Home Assistant and
// removes entities that are no longer emitted.
type Publisher struct {
	baseURL string
	token   string
	builder entities.Builder
	http    *http.Client
	logger  *log.Logger
	now     func() time.Time

	mu        sync.Mutex
	published map[string]struct{}
}

// NewPublisher creates a publisher for the Home Assistant at baseURL using a
// long-lived access token.
func NewPublisher(baseURL, token string, builder entities.Builder, timeout time.Duration, logger *log.Logger) (*Publisher, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid home assistant url %q", baseURL)
	}
	if token == "" {
		return nil, fmt.Errorf("missing home assistant token")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Publisher{
		baseURL:   u.String(),
		token:     token,
		builder:   builder,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		now:       time.Now,
		published: make(map[string]struct{}),
	}, nil
}

// SnapshotUpdated publishes every entity of snap. Failures are logged per
// entity and do not stop the remaining writes.
func (p *Publisher) SnapshotUpdated(ctx context.Context, snap *domain.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.builder.Build(snap, p.now())
	current := make(map[string]struct{}, len(list))
	var failed int
	for _, e := range list {
		id := e.EntityID()
		current[id] = struct{}{}
		if err := p.post(ctx, id, statePayload{State: e.State, Attributes: e.HostAttributes()}); err != nil {
			failed++
			p.logger.WithError(err).WithField("entity_id", id).Error("failed to publish entity state")
		}
	}

	stale := make([]string, 0)
	for id := range p.published {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		if err := p.remove(ctx, id); err != nil {
			p.logger.WithError(err).WithField("entity_id", id).Error("failed to remove entity")
			current[id] = struct{}{}
		}
	}
	p.published = current

	p.logger.WithFields(log.Fields{
		"entities": len(list),
		"failed":   failed,
		"removed":  len(stale),
	}).Debug("published entity states")
}

func (p *Publisher) post(ctx context.Context, entityID string, payload statePayload) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("unable to encode state: %w", err)
	}
	return p.do(ctx, http.MethodPost, entityID, bytes.NewReader(body))
}

func (p *Publisher) remove(ctx context.Context, entityID string) error {
	err := p.do(ctx, http.MethodDelete, entityID, nil)
	if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.code, e.body)
}

func (p *Publisher) do(ctx context.Context, method, entityID string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+statesPath+url.PathEscape(entityID), body)
	if err != nil {
		return fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("unable to make request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(text))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
