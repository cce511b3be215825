package application

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
)

const interruptedMessage = "computation interrupted"

type ComputeFunc func(ctx context.Context, dims domain.Dimensions) (uint, error)

// Tracker keeps the status of every group of one analysis in memory so that a
// dimension pair is never computed twice at the same time.
type Tracker struct {
	store  domain.EntityStore
	logger logrus.FieldLogger

	mu     sync.Mutex
	states map[domain.Dimensions]domain.GroupState
}

func NewTracker(store domain.EntityStore, logger logrus.FieldLogger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		states: make(map[domain.Dimensions]domain.GroupState),
	}
}

// Load rebuilds the projection from the store. Groups left computing by a
// previous process are marked failed.
func (t *Tracker) Load(ctx context.Context) error {
	groups, err := t.store.ListGroups(ctx)
	if err != nil {
		return err
	}

	states := make(map[domain.Dimensions]domain.GroupState, len(groups))
	for _, g := range groups {
		state := domain.GroupState{Dimensions: g.Dimensions(), Status: g.Status, ID: g.ID, Error: g.Error}
		if g.Status == domain.GroupComputing {
			if err := t.store.FailGroup(ctx, g.ID, interruptedMessage); err != nil {
				return err
			}
			state.Status = domain.GroupFailed
			state.Error = interruptedMessage
			t.logger.WithField("group_id", g.ID).Warn("interrupted group marked failed")
		}
		states[state.Dimensions] = state
	}

	t.mu.Lock()
	t.states = states
	t.mu.Unlock()
	return nil
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	t.states = make(map[domain.Dimensions]domain.GroupState)
	t.mu.Unlock()
}

// Begin marks dims as computing. It returns the cached id with cached set when a
// successful group exists and force is false.
func (t *Tracker) Begin(dims domain.Dimensions, force bool) (id uint, cached bool, err error) {
	if err := dims.Validate(); err != nil {
		return 0, false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[dims]
	if ok {
		switch {
		case state.Status == domain.GroupComputing:
			return state.ID, false, fmt.Errorf("%s/%s: %w", dims.GroupBy1, dims.GroupBy2, domain.ErrGroupComputing)
		case state.Status == domain.GroupSuccess && !force:
			return state.ID, true, nil
		}
	}
	t.states[dims] = domain.GroupState{Dimensions: dims, Status: domain.GroupComputing, ID: state.ID}
	return state.ID, false, nil
}

func (t *Tracker) Finish(dims domain.Dimensions, id uint, err error) {
	state := domain.GroupState{Dimensions: dims, ID: id, Status: domain.GroupSuccess}
	if err != nil {
		state.Status = domain.GroupFailed
		state.Error = err.Error()
	}

	t.mu.Lock()
	t.states[dims] = state
	t.mu.Unlock()
}

func (t *Tracker) GetOrCompute(ctx context.Context, dims domain.Dimensions, force bool, compute ComputeFunc) (uint, error) {
	id, cached, err := t.Begin(dims, force)
	if err != nil || cached {
		return id, err
	}
	id, err = compute(ctx, dims)
	t.Finish(dims, id, err)
	return id, err
}

func (t *Tracker) State(dims domain.Dimensions) (domain.GroupState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[dims]
	return state, ok
}

// States returns a snapshot ordered by group id, groups without an id last.
func (t *Tracker) States() []domain.GroupState {
	t.mu.Lock()
	out := make([]domain.GroupState, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, s)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.ID == 0) != (b.ID == 0) {
			return b.ID == 0
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Dimensions.GroupBy1 != b.Dimensions.GroupBy1 {
			return a.Dimensions.GroupBy1 < b.Dimensions.GroupBy1
		}
		if a.Dimensions.GroupBy2 != b.Dimensions.GroupBy2 {
			return a.Dimensions.GroupBy2 < b.Dimensions.GroupBy2
		}
		return a.Dimensions.Follow < b.Dimensions.Follow
	})
	return out
}

// GetGroup reads the nodes and links of a group.
func (t *Tracker) GetGroup(ctx context.Context, id uint) (domain.Group, domain.GroupGraph, error) {
	group, err := t.store.GetGroup(ctx, id)
	if err != nil {
		return domain.Group{}, domain.GroupGraph{}, err
	}
	if group.Status != domain.GroupSuccess {
		return group, domain.GroupGraph{Nodes: []domain.GroupNode{}, Links: []domain.GroupLink{}}, nil
	}
	nodes, err := t.store.GroupNodes(ctx, id)
	if err != nil {
		return domain.Group{}, domain.GroupGraph{}, err
	}
	links, err := t.store.GroupLinks(ctx, id)
	if err != nil {
		return domain.Group{}, domain.GroupGraph{}, err
	}
	return group, domain.GroupGraph{Nodes: nodes, Links: links}, nil
}
