// Package enforcer owns the single in-process Casbin enforcer handle and
// coordinates its reload (C6): a long-lived coordinator whose Reload is
// serialized by a mutex while concurrent Enforce calls read an atomic
// snapshot, never a torn mixture of pre/post-reload state.
package enforcer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castellan/iamcore/internal/auth"
	"github.com/castellan/iamcore/internal/telemetry"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
)

// ActiveModelSource is the subset of the Model-Config Service/Store this
// coordinator depends on: the content of the currently active model
// version, or "" if none exists.
type ActiveModelSource interface {
	GetActiveModelContent(ctx context.Context) (string, error)
}

// BaseModelLoader returns a freshly parsed copy of the fallback Casbin model
// used when no model-config version is active. Called anew on every reload
// so the returned model.Model is never shared with a previously installed
// enforcer — casbin's LoadPolicy mutates assertion policy data in place on
// whatever model.Model instance the enforcer was built with.
type BaseModelLoader func() (model.Model, error)

// Coordinator owns the enforcer handle and serializes reloads.
type Coordinator struct {
	models        ActiveModelSource
	adapter       persist.Adapter
	loadBaseModel BaseModelLoader

	mu       sync.Mutex // serializes Reload calls
	snapshot atomic.Value
	metrics  *telemetry.EnforcerMetrics
}

// New builds a Coordinator around an already-initialized enforcer (adapter
// wired, bexprMatch registered, initial LoadPolicy already done by the
// caller at bootstrap), the model-config content source used on reload, the
// same adapter the initial enforcer was built with, and a loader for the
// fallback model used whenever no model-config version is active.
func New(initial casbin.IEnforcer, models ActiveModelSource, adapter persist.Adapter, loadBaseModel BaseModelLoader) *Coordinator {
	c := &Coordinator{models: models, adapter: adapter, loadBaseModel: loadBaseModel}
	c.snapshot.Store(initial)
	return c
}

// WithMetrics attaches metrics to an existing Coordinator and returns it, so
// Reload calls record instrument observations.
func (c *Coordinator) WithMetrics(metrics *telemetry.EnforcerMetrics) *Coordinator {
	c.metrics = metrics
	return c
}

// Enforcer returns the current enforcer snapshot. Safe to call concurrently
// with Reload; it either returns the pre- or post-reload enforcer, never a
// partially-swapped one.
func (c *Coordinator) Enforcer() casbin.IEnforcer {
	return c.snapshot.Load().(casbin.IEnforcer)
}

// Enforce evaluates sub/obj/act/dom against the current snapshot.
func (c *Coordinator) Enforce(sub, obj, act, dom string) (bool, error) {
	return c.Enforcer().Enforce(sub, obj, act, dom)
}

// Reload fetches the active model content, builds an entirely new enforcer
// off to the side against it (or the fallback model if no version is
// active) and loads policy into that new instance. Only once both steps
// succeed is it swapped into the snapshot; on any error it logs and returns
// false, leaving the previously installed enforcer completely untouched.
// The candidate is never the object currently installed as the snapshot, so
// a concurrent Enforce call never observes a new-model/old-policy (or
// half-loaded-policy) mixture — it sees either the old enforcer in full or
// the new one in full.
func (c *Coordinator) Reload(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	ok := c.reloadLocked(ctx)

	if c.metrics != nil {
		c.metrics.RecordReload(ctx, float64(time.Since(start).Milliseconds()), ok)
	}

	return ok
}

func (c *Coordinator) reloadLocked(ctx context.Context) bool {
	content, err := c.models.GetActiveModelContent(ctx)
	if err != nil {
		log.Printf("enforcer reload: load active model content: %v", err)
		return false
	}

	var m model.Model
	if content != "" {
		m, err = model.NewModelFromString(content)
		if err != nil {
			log.Printf("enforcer reload: parse active model: %v", err)
			return false
		}
	} else {
		m, err = c.loadBaseModel()
		if err != nil {
			log.Printf("enforcer reload: load fallback model: %v", err)
			return false
		}
	}

	candidate, err := casbin.NewSyncedEnforcer(m, c.adapter)
	if err != nil {
		log.Printf("enforcer reload: build candidate enforcer: %v", err)
		return false
	}
	candidate.AddFunction("bexprMatch", auth.BexprMatchFunction())

	if err := candidate.LoadPolicy(); err != nil {
		log.Printf("enforcer reload: load policy: %v", err)
		return false
	}

	c.snapshot.Store(candidate)
	return true
}

// InitEnforcer constructs a fresh Casbin enforcer against adapter, wires the
// bexprMatch matcher function, and performs the initial LoadPolicy. It is
// the bootstrap counterpart to Coordinator.Reload.
func InitEnforcer(modelPath string, adapter any) (casbin.IEnforcer, error) {
	e, err := casbin.NewSyncedEnforcer(modelPath, adapter)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	e.AddFunction("bexprMatch", auth.BexprMatchFunction())

	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}

	return e, nil
}
