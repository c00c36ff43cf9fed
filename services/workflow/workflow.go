// Package workflow keeps short-lived state for multi-page flows (renewal
// payment, mock tests) under an opaque token instead of the HTTP session.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("workflow not found or expired")
	ErrUnknownKind   = errors.New("unknown workflow kind")
	ErrWrongStage    = errors.New("workflow is not at the expected stage")
	ErrMissingFields = errors.New("workflow is missing required fields")
)

// State is one in-flight workflow.
type State struct {
	Token     string            `json:"token"`
	Kind      string            `json:"kind"`
	UserID    uint              `json:"user_id"`
	Stage     string            `json:"stage"`
	Fields    map[string]string `json:"fields"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Get returns a field value or "".
func (s State) Get(key string) string {
	return s.Fields[key]
}

// Store persists workflow states until they expire.
type Store interface {
	Save(ctx context.Context, st State) error
	Load(ctx context.Context, token string) (*State, error)
	Delete(ctx context.Context, token string) error
}

// Flow lists the stages of a workflow kind in order and the fields each stage
// must carry once reached.
type Flow struct {
	Stages   []string
	Required map[string][]string
}

func (f Flow) next(stage string) (string, bool) {
	for i, s := range f.Stages {
		if s == stage && i+1 < len(f.Stages) {
			return f.Stages[i+1], true
		}
	}
	return "", false
}

// Engine drives workflows through their flows.
type Engine struct {
	store Store
	ttl   time.Duration
	flows map[string]Flow
	now   func() time.Time
}

func NewEngine(store Store, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Engine{store: store, ttl: ttl, flows: map[string]Flow{}, now: time.Now}
}

// Register adds a flow under kind.
func (e *Engine) Register(kind string, f Flow) {
	e.flows[kind] = f
}

// Start opens a workflow at the first stage of its flow.
func (e *Engine) Start(ctx context.Context, kind string, userID uint, fields map[string]string) (*State, error) {
	flow, ok := e.flows[kind]
	if !ok || len(flow.Stages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	st := State{
		Token:     uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		Stage:     flow.Stages[0],
		Fields:    copyFields(nil, fields),
		ExpiresAt: e.now().Add(e.ttl),
	}
	if err := checkRequired(flow, st); err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Load returns the user's workflow of the given kind.
func (e *Engine) Load(ctx context.Context, token, kind string, userID uint) (*State, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	st, err := e.store.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	// someone else's token behaves like an expired one
	if st.Kind != kind || st.UserID != userID || !st.ExpiresAt.After(e.now()) {
		return nil, ErrNotFound
	}
	return st, nil
}

// Advance moves a workflow from stage from to the next stage of its flow,
// merging fields. The expiry is not extended.
func (e *Engine) Advance(ctx context.Context, st *State, from string, fields map[string]string) (*State, error) {
	if st.Stage != from {
		return nil, fmt.Errorf("%w: at %s, expected %s", ErrWrongStage, st.Stage, from)
	}
	flow, ok := e.flows[st.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, st.Kind)
	}
	to, ok := flow.next(st.Stage)
	if !ok {
		return nil, fmt.Errorf("%w: %s is final", ErrWrongStage, st.Stage)
	}
	next := *st
	next.Stage = to
	next.Fields = copyFields(st.Fields, fields)
	if err := checkRequired(flow, next); err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Finish drops a workflow.
func (e *Engine) Finish(ctx context.Context, token string) error {
	return e.store.Delete(ctx, token)
}

func checkRequired(flow Flow, st State) error {
	var missing []string
	for _, k := range flow.Required[st.Stage] {
		if strings.TrimSpace(st.Fields[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w at %s: %s", ErrMissingFields, st.Stage, strings.Join(missing, ", "))
	}
	return nil
}

func copyFields(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
