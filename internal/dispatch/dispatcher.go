// Package dispatch is the orchestrator: it owns the registry, the task queue,
// the per-user counters and the back-end client, admits submissions and runs
// the per-server worker loop.
package dispatch

import (
	"fmt"

	"comfygate/internal/admission"
	"comfygate/internal/graph"
	"comfygate/internal/model"
	"comfygate/internal/names"
	"comfygate/internal/queue"
	"comfygate/internal/registry"
	"comfygate/internal/workflow"
	"comfygate/pkg/comfy"
	"comfygate/pkg/config"

	"github.com/google/uuid"
)

// Reconciler realigns the worker set with the registry. The dispatcher
// notifies it when a job failure changes a server's health, so the pending
// queue is drained as soon as the last healthy server fails out rather than
// on the next probe sweep.
type Reconciler interface {
	Reconcile()
}

// Dispatcher the dispatch orchestrator
type Dispatcher struct {
	cfg        *config.Config
	registry   *registry.Registry
	queue      *queue.Queue
	counters   *admission.UserCounters
	admission  *admission.Controller
	client     *comfy.Client
	builder    *graph.Builder
	workflows  *workflow.Set
	models     *names.Map
	loras      *names.Map
	reconciler Reconciler
}

// New wires the dispatcher from configuration and the loaded workflow set.
func New(cfg *config.Config, workflows *workflow.Set) (*Dispatcher, error) {
	openRanges, err := admission.ParseTimeRanges(cfg.OpenTimeRanges)
	if err != nil {
		return nil, fmt.Errorf("failed to parse open time ranges: %w", err)
	}

	reg := registry.New(cfg.Backends(), cfg.Dispatch)
	q := queue.New(cfg.Dispatch.MaxTaskQueue)
	counters := admission.NewUserCounters(cfg.Dispatch.MaxConcurrentTasksPerUser)

	return &Dispatcher{
		cfg:       cfg,
		registry:  reg,
		queue:     q,
		counters:  counters,
		admission: admission.New(reg, q, counters, openRanges, cfg.GroupWhitelist),
		client:    comfy.NewClient(),
		builder:   graph.NewBuilder(cfg.Generation),
		workflows: workflows,
		models:    names.NewMap(cfg.ModelConfig),
		loras:     names.NewMap(cfg.LoraConfig),
	}, nil
}

// SetReconciler registers the worker supervisor for failure-driven
// reconciliation. Optional; without it health changes are picked up on the
// next probe sweep only.
func (d *Dispatcher) SetReconciler(r Reconciler) {
	d.reconciler = r
}

func (d *Dispatcher) reconcile() {
	if d.reconciler != nil {
		d.reconciler.Reconcile()
	}
}

// Registry exposes the server registry for the prober and the HTTP adapter.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Queue exposes the task queue for the supervisor.
func (d *Dispatcher) Queue() *queue.Queue {
	return d.queue
}

// Counters exposes the per-user counters for the supervisor.
func (d *Dispatcher) Counters() *admission.UserCounters {
	return d.counters
}

// Client exposes the shared back-end client.
func (d *Dispatcher) Client() *comfy.Client {
	return d.client
}

// Workflows exposes the loaded workflow set.
func (d *Dispatcher) Workflows() *workflow.Set {
	return d.workflows
}

// Models exposes the checkpoint name map.
func (d *Dispatcher) Models() *names.Map {
	return d.models
}

// Loras exposes the LoRA name map.
func (d *Dispatcher) Loras() *names.Map {
	return d.loras
}

// ResolveModel resolves a user model query to a checkpoint reference.
func (d *Dispatcher) ResolveModel(query string) (*model.ModelRef, error) {
	entry, err := d.models.Resolve(query)
	if err != nil {
		return nil, err
	}
	return &model.ModelRef{Name: entry.Name, File: entry.File}, nil
}

// ResolveLora resolves a LoRA spec of the form name[:model][!clip] to a
// reference with strengths.
func (d *Dispatcher) ResolveLora(spec string) (model.LoraRef, error) {
	name, strengthModel, strengthClip, err := names.ParseLoraSpec(spec)
	if err != nil {
		return model.LoraRef{}, err
	}
	entry, err := d.loras.Resolve(name)
	if err != nil {
		return model.LoraRef{}, err
	}
	return model.LoraRef{
		Name:          entry.Name,
		File:          entry.File,
		StrengthModel: strengthModel,
		StrengthClip:  strengthClip,
	}, nil
}

// AddTemporaryServer registers a back-end for the process lifetime. It starts
// unhealthy; the next probe sweep brings it up.
func (d *Dispatcher) AddTemporaryServer(name, url string) *model.Server {
	return d.registry.AddTemporary(name, url)
}

func newJobID() string {
	return uuid.New().String()
}
