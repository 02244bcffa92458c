// Package controller owns the rule set, its persistence, and the decision
// of when to push enforcement changes to the privileged daemon.
//
// Every mutation persists before any enforcement traffic is issued, so a
// crash mid-cycle never loses user intent. Enforcement cycles run on a
// background goroutine and are coalesced: while one cycle is in flight, any
// number of further requests collapse into a single follow-up cycle that
// reads the latest persisted state.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lowdata/blockd/internal/rule"
)

// StateStore persists the rule set and the enforcement flags.
type StateStore interface {
	LoadRules(ctx context.Context) ([]rule.Rule, bool, error)
	SaveRules(ctx context.Context, rules []rule.Rule) error
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, v bool) error
	Trusted(ctx context.Context) (bool, error)
	SetTrusted(ctx context.Context, v bool) error
}

// Enforcement pushes full rule sets to the privileged daemon. Both calls
// are bounded internally; a returned error is a definite failure and the
// controller never retries it on its own.
type Enforcement interface {
	Apply(ctx context.Context, rules []rule.Dict) error
	RemoveAll(ctx context.Context) error
}

// Snapshot is the controller state as presented to the user.
type Snapshot struct {
	// Enabled is the persisted global enforcement switch.
	Enabled bool
	// Trusted is the persisted trusted-network signal.
	Trusted bool
	// Enforcing reports whether rules are currently pushed: enabled and
	// not on a trusted network.
	Enforcing bool
	// RuleCount is the total number of rules, enabled or not.
	RuleCount int
	// LastError is the outcome of the most recent enforcement cycle,
	// empty after a success.
	LastError string
}

// Controller orchestrates rules, persistence and enforcement.
type Controller struct {
	store  StateStore
	enf    Enforcement
	logger *slog.Logger

	mu      sync.Mutex
	rules   []rule.Rule
	enabled bool
	trusted bool
	lastErr string

	// Single-slot cycle coalescing: inFlight marks a running worker,
	// again remembers that one more cycle is wanted after it.
	inFlight bool
	again    bool
	wg       sync.WaitGroup
}

// New loads the persisted state, seeding the built-in default rules on
// first run, and returns a ready controller. No enforcement traffic is
// issued until a mutation or Apply asks for it.
func New(ctx context.Context, store StateStore, enf Enforcement, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		store:  store,
		enf:    enf,
		logger: logger.With("component", "controller"),
	}

	rules, ok, err := store.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("controller: load rules: %w", err)
	}
	if !ok {
		rules = rule.Defaults()
		if err := store.SaveRules(ctx, rules); err != nil {
			return nil, fmt.Errorf("controller: seed default rules: %w", err)
		}
		c.logger.Info("seeded default rules", "count", len(rules))
	}
	c.rules = rules

	if c.enabled, err = store.Enabled(ctx); err != nil {
		return nil, fmt.Errorf("controller: load enabled flag: %w", err)
	}
	if c.trusted, err = store.Trusted(ctx); err != nil {
		return nil, fmt.Errorf("controller: load trusted flag: %w", err)
	}
	return c, nil
}

// Close waits for any in-flight enforcement cycle to finish. Callers must
// stop mutating before closing.
func (c *Controller) Close() {
	c.wg.Wait()
}

// Rules returns a copy of the rule set in display order.
func (c *Controller) Rules() []rule.Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rule.Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Clone()
	}
	return out
}

// Rule returns the rule with the given id.
func (c *Controller) Rule(id string) (rule.Rule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.rules[i].Clone(), true
	}
	return rule.Rule{}, false
}

// Snapshot returns the current user-facing state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Enabled:   c.enabled,
		Trusted:   c.trusted,
		Enforcing: c.enforcingLocked(),
		RuleCount: len(c.rules),
		LastError: c.lastErr,
	}
}

// LastError returns the outcome of the most recent enforcement cycle, or
// the empty string after a success. Each cycle replaces it.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Add validates and appends a rule, persisting the new set. The rule set
// is reapplied when enforcement is active.
func (c *Controller) Add(ctx context.Context, r rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexLocked(r.ID) >= 0 {
		return fmt.Errorf("controller: rule %s already exists", r.ID)
	}
	next := append(c.copyRulesLocked(), r.Clone())
	if err := c.store.SaveRules(ctx, next); err != nil {
		return fmt.Errorf("controller: save rules: %w", err)
	}
	c.rules = next
	c.logger.Info("rule added", "rule_id", r.ID, "name", r.Name, "kind", r.Kind)
	if c.enforcingLocked() {
		c.requestCycleLocked()
	}
	return nil
}

// Remove deletes a user-added rule. Built-in rules can be disabled but not
// removed.
func (c *Controller) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("controller: no rule with id %s", id)
	}
	if !c.rules[idx].UserAdded {
		return fmt.Errorf("controller: rule %q is built in and cannot be removed, disable it instead", c.rules[idx].Name)
	}

	next := make([]rule.Rule, 0, len(c.rules)-1)
	next = append(next, c.rules[:idx]...)
	next = append(next, c.rules[idx+1:]...)
	if err := c.store.SaveRules(ctx, next); err != nil {
		return fmt.Errorf("controller: save rules: %w", err)
	}
	c.rules = next
	c.logger.Info("rule removed", "rule_id", id)
	if c.enforcingLocked() {
		c.requestCycleLocked()
	}
	return nil
}

// SetRuleEnabled toggles a single rule, persisting the change. The toggle
// reaches the packet filter only while enforcement is active; one made
// while disabled is picked up by the next enable.
func (c *Controller) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("controller: no rule with id %s", id)
	}
	if c.rules[idx].Enabled == enabled {
		return nil
	}

	next := c.copyRulesLocked()
	next[idx].Enabled = enabled
	if err := c.store.SaveRules(ctx, next); err != nil {
		return fmt.Errorf("controller: save rules: %w", err)
	}
	c.rules = next
	c.logger.Info("rule toggled", "rule_id", id, "enabled", enabled)
	if c.enforcingLocked() {
		c.requestCycleLocked()
	}
	return nil
}

// Update replaces a rule's definition wholesale, preserving its identity
// and provenance. The id, creation time and built-in marker of the
// existing rule survive the edit.
func (c *Controller) Update(ctx context.Context, r rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(r.ID)
	if idx < 0 {
		return fmt.Errorf("controller: no rule with id %s", r.ID)
	}
	repl := r.Clone()
	repl.UserAdded = c.rules[idx].UserAdded
	repl.CreatedAt = c.rules[idx].CreatedAt

	next := c.copyRulesLocked()
	next[idx] = repl
	if err := c.store.SaveRules(ctx, next); err != nil {
		return fmt.Errorf("controller: save rules: %w", err)
	}
	c.rules = next
	c.logger.Info("rule updated", "rule_id", r.ID)
	if c.enforcingLocked() {
		c.requestCycleLocked()
	}
	return nil
}

// Enabled reports the persisted global enforcement switch.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Trusted reports the persisted trusted-network signal.
func (c *Controller) Trusted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trusted
}

// SetEnabled turns enforcement on or off. The flag persists across
// restarts; a cycle pushing or removing rules runs only when the effective
// state actually changes.
func (c *Controller) SetEnabled(ctx context.Context, v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == v {
		return nil
	}
	if err := c.store.SetEnabled(ctx, v); err != nil {
		return fmt.Errorf("controller: save enabled flag: %w", err)
	}
	before := c.enforcingLocked()
	c.enabled = v
	c.logger.Info("enforcement switch", "enabled", v)
	if c.enforcingLocked() != before {
		c.requestCycleLocked()
	}
	return nil
}

// SetTrusted records the trusted-network signal. Joining a trusted network
// suspends enforcement; leaving one restores it when enabled.
func (c *Controller) SetTrusted(ctx context.Context, v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trusted == v {
		return nil
	}
	if err := c.store.SetTrusted(ctx, v); err != nil {
		return fmt.Errorf("controller: save trusted flag: %w", err)
	}
	before := c.enforcingLocked()
	c.trusted = v
	c.logger.Info("trusted network", "trusted", v)
	if c.enforcingLocked() != before {
		c.requestCycleLocked()
	}
	return nil
}

// Apply forces one enforcement cycle reflecting the current state. It is
// the manual retry surface; the controller never retries on its own.
func (c *Controller) Apply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCycleLocked()
}

// enforcingLocked reports whether rules should be pushed. Callers hold c.mu.
func (c *Controller) enforcingLocked() bool {
	return c.enabled && !c.trusted
}

func (c *Controller) indexLocked(id string) int {
	for i, r := range c.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) copyRulesLocked() []rule.Rule {
	next := make([]rule.Rule, len(c.rules))
	copy(next, c.rules)
	return next
}

// requestCycleLocked schedules an enforcement cycle. While a cycle is in
// flight further requests set the again flag instead of spawning more
// workers, so at most one follow-up runs and it sees the latest state.
// Callers hold c.mu.
func (c *Controller) requestCycleLocked() {
	if c.inFlight {
		c.again = true
		return
	}
	c.inFlight = true
	c.wg.Add(1)
	go c.runCycles()
}

func (c *Controller) runCycles() {
	defer c.wg.Done()
	for {
		c.runOneCycle()

		c.mu.Lock()
		if !c.again {
			c.inFlight = false
			c.mu.Unlock()
			return
		}
		c.again = false
		c.mu.Unlock()
	}
}

// runOneCycle pushes the current desired state to the daemon: a full apply
// when enforcing, a removeAll otherwise. The outcome replaces the last
// error either way.
func (c *Controller) runOneCycle() {
	c.mu.Lock()
	enforcing := c.enforcingLocked()
	var dicts []rule.Dict
	if enforcing {
		dicts = enabledDicts(c.rules)
	}
	c.mu.Unlock()

	// The client bounds each call with its own timeout, so Background is
	// safe here and lets a cycle outlive the mutation that triggered it.
	ctx := context.Background()
	var (
		action string
		err    error
	)
	if enforcing {
		action = "apply"
		err = c.enf.Apply(ctx, dicts)
	} else {
		action = "removeAll"
		err = c.enf.RemoveAll(ctx)
	}

	c.mu.Lock()
	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastErr = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("enforcement cycle failed", "action", action, "error", err)
		return
	}
	c.logger.Info("enforcement cycle completed", "action", action, "rules", len(dicts))
}

// enabledDicts converts the enabled rules to their wire form in display
// order.
func enabledDicts(rules []rule.Rule) []rule.Dict {
	dicts := make([]rule.Dict, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			dicts = append(dicts, r.Dict())
		}
	}
	return dicts
}
