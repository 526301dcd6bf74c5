package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"comfygate/internal/model"
	"comfygate/pkg/comfy"
	"comfygate/pkg/logger"

	"go.uber.org/zap"
)

// errFailover signals that the job was re-queued onto the shared queue and no
// outcome must be delivered for it on this server.
var errFailover = errors.New("job re-queued for another server")

// RunWorker is the dispatch loop run by the supervisor, one per healthy
// server. It takes jobs from the shared queue, claims the next available
// back-end under round-robin selection and delivers the terminal outcome.
// The bound server governs only the loop's lifetime: the worker exits when
// its server goes unhealthy, when stop is closed or when ctx is cancelled.
func (d *Dispatcher) RunWorker(ctx context.Context, stop <-chan struct{}, srv *model.Server) {
	idlePoll := d.cfg.Dispatch.WorkerIdlePollDuration()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, ok := d.queue.Take(idlePoll)
		if !ok {
			continue
		}

		// Liveness first: a job taken by a worker whose server died between
		// probes goes back to the tail for a live worker.
		if !d.registry.IsHealthy(srv) {
			d.requeueOrCancel(job, "server unhealthy before dispatch")
			return
		}

		target := d.registry.ClaimAnyAvailable()
		if target == nil {
			d.requeueOrCancel(job, "no server claimable")
			time.Sleep(time.Second)
			continue
		}

		d.dispatch(ctx, target, job)
		d.registry.Release(target)
	}
}

// dispatch runs one job on one server with transient retries, then delivers
// exactly one terminal outcome unless the job failed over to another server.
func (d *Dispatcher) dispatch(ctx context.Context, srv *model.Server, job *model.Job) {
	maxRetries := d.cfg.Dispatch.MaxRetries
	retrySleep := d.cfg.Dispatch.RetrySleepDuration()

	for attempt := 0; ; attempt++ {
		started := time.Now()
		artifacts, err := d.runJob(ctx, srv, job)

		if err == nil {
			d.registry.ResetFailure(srv)
			logger.Info("job completed",
				zap.String("job_id", job.ID),
				zap.String("server", srv.Name),
				zap.Duration("elapsed", time.Since(started)),
				zap.Int("artifacts", len(artifacts.Items)),
			)
			d.deliver(job, model.Outcome{
				Status:    model.OutcomeOK,
				Artifacts: artifacts,
				Server:    srv.Name,
			})
			return
		}

		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			d.deliver(job, model.Outcome{Status: model.OutcomeCancelled, Err: err, Server: srv.Name})
			return

		case comfy.IsPermanent(err):
			// User-facing error: no retry, no failover, no failure counted.
			logger.Info("job rejected permanently",
				zap.String("job_id", job.ID),
				zap.String("server", srv.Name),
				zap.Error(err),
			)
			d.deliver(job, model.Outcome{Status: model.OutcomePermanent, Err: err, Server: srv.Name})
			return

		case comfy.IsFatal(err):
			// Poll timeout or dropped-job anomaly: surfaced as-is. Only
			// transient failures count against the server.
			logger.Error("job failed fatally",
				zap.String("job_id", job.ID),
				zap.String("server", srv.Name),
				zap.Error(err),
			)
			d.deliver(job, model.Outcome{Status: model.OutcomeFatal, Err: err, Server: srv.Name})
			return

		default:
			// Transient. The poll callback may already have failed the server
			// out; in that case hand the job to a live server and tell the
			// supervisor so the queue is drained when no live server remains.
			if !d.registry.IsHealthy(srv) {
				if !d.failover(job, srv) {
					d.deliver(job, model.Outcome{Status: model.OutcomeTransient, Err: err, Server: srv.Name})
				}
				d.reconcile()
				return
			}

			becameUnhealthy := d.registry.MarkFailure(srv)
			if becameUnhealthy {
				if !d.failover(job, srv) {
					d.deliver(job, model.Outcome{Status: model.OutcomeTransient, Err: err, Server: srv.Name})
				}
				d.reconcile()
				return
			}

			if attempt < maxRetries {
				logger.Warn("transient failure, retrying",
					zap.String("job_id", job.ID),
					zap.String("server", srv.Name),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				time.Sleep(retrySleep)
				continue
			}

			d.deliver(job, model.Outcome{Status: model.OutcomeTransient, Err: err, Server: srv.Name})
			return
		}
	}
}

// deliver publishes the terminal outcome and releases the user's slot.
func (d *Dispatcher) deliver(job *model.Job, o model.Outcome) {
	job.Deliver(o)
	d.counters.Release(job.UserID)
}

// failover re-queues the job at the tail for another worker. The user slot
// stays held because the job is still in flight. Returns false when the queue
// is full, in which case the caller surfaces the original error.
func (d *Dispatcher) failover(job *model.Job, srv *model.Server) bool {
	if !d.queue.TryPut(job) {
		logger.Error("failover re-queue failed, queue full",
			zap.String("job_id", job.ID),
			zap.String("server", srv.Name),
		)
		return false
	}
	logger.Warn("job re-queued after server failure",
		zap.String("job_id", job.ID),
		zap.String("server", srv.Name),
	)
	return true
}

// requeueOrCancel puts the job back for another worker, cancelling it when
// the queue cannot take it.
func (d *Dispatcher) requeueOrCancel(job *model.Job, reason string) {
	if d.queue.TryPut(job) {
		return
	}
	d.deliver(job, model.Outcome{
		Status: model.OutcomeCancelled,
		Err:    fmt.Errorf("%s and queue full", reason),
	})
}

// runJob performs one dispatch attempt: build the graph, submit it, poll to
// completion, locate the artifacts.
func (d *Dispatcher) runJob(ctx context.Context, srv *model.Server, job *model.Job) (*model.Artifacts, error) {
	g, err := d.buildGraph(ctx, srv, job)
	if err != nil {
		return nil, err
	}

	promptID, err := d.client.SubmitPrompt(ctx, srv.URL, srv.Name, g)
	if err != nil {
		return nil, err
	}
	logger.Info("prompt submitted",
		zap.String("job_id", job.ID),
		zap.String("server", srv.Name),
		zap.String("prompt_id", promptID),
	)

	if job.OnProgress != nil {
		progressCtx, cancelProgress := context.WithCancel(ctx)
		defer cancelProgress()
		go d.streamProgress(progressCtx, srv, job, promptID)
	}

	entry, err := d.client.PollHistory(ctx, srv.URL, srv.Name, promptID, comfy.PollOptions{
		Timeout:            d.cfg.Dispatch.PollTimeoutDuration(),
		Interval:           d.cfg.Dispatch.PollIntervalDuration(),
		QueueCheckDelay:    d.cfg.Dispatch.QueueCheckDelayDuration(),
		QueueCheckInterval: d.cfg.Dispatch.QueueCheckIntervalDuration(),
		EmptyQueueMaxRetry: d.cfg.Dispatch.EmptyQueueMaxRetry,
		OnServerError: func(err error) bool {
			d.registry.MarkFailure(srv)
			return !d.registry.IsHealthy(srv)
		},
	})
	if err != nil {
		return nil, err
	}

	refs, err := comfy.Artifacts(srv.Name, entry)
	if err != nil {
		return nil, err
	}

	items := make([]model.Artifact, 0, len(refs))
	for _, ref := range refs {
		items = append(items, model.Artifact{
			Filename:  ref.Filename,
			Subfolder: ref.Subfolder,
			Kind:      model.ArtifactKind(ref.Kind),
			URL:       comfy.ViewURL(srv.URL, ref.Filename, ref.Subfolder, ref.Type, false),
		})
	}
	return &model.Artifacts{Server: srv.Name, Items: items}, nil
}

// buildGraph assembles the node graph for the job's kind, uploading input
// images to the claimed server first.
func (d *Dispatcher) buildGraph(ctx context.Context, srv *model.Server, job *model.Job) (interface{}, error) {
	switch job.Kind {
	case model.JobKindTxt2Img:
		return d.builder.Txt2Img(job.Txt2Img), nil

	case model.JobKindImg2Img:
		uploaded, err := d.uploadInput(ctx, srv, job.Img2Img.Image)
		if err != nil {
			return nil, err
		}
		return d.builder.Img2Img(job.Img2Img, uploaded), nil

	case model.JobKindWorkflow:
		desc, ok := d.workflows.Get(job.Workflow.Workflow)
		if !ok {
			return nil, &comfy.PermanentError{
				Kind:    comfy.InvalidPrompt,
				Server:  srv.Name,
				Message: fmt.Sprintf("unknown workflow %q", job.Workflow.Workflow),
			}
		}
		uploadedNames := make([]string, 0, len(job.Workflow.Images))
		for _, img := range job.Workflow.Images {
			uploaded, err := d.uploadInput(ctx, srv, img)
			if err != nil {
				return nil, err
			}
			uploadedNames = append(uploadedNames, uploaded)
		}
		return desc.BuildGraph(job.Workflow.Params, uploadedNames)

	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// uploadInput sends one input image to the claimed server. Images referenced
// by path are read fresh on every attempt so a failover re-uploads them.
func (d *Dispatcher) uploadInput(ctx context.Context, srv *model.Server, img model.InputImage) (string, error) {
	data := img.Data
	if len(data) == 0 {
		var err error
		data, err = os.ReadFile(img.Path)
		if err != nil {
			return "", &comfy.PermanentError{
				Kind:    comfy.BadInput,
				Server:  srv.Name,
				Message: fmt.Sprintf("failed to read input image: %v", err),
			}
		}
	}

	name := img.Name
	if name == "" {
		name = "input.png"
	}
	return d.client.UploadImage(ctx, srv.URL, name, data)
}

// streamProgress forwards WebSocket progress events for one prompt to the
// job's callback. Best effort: a failed stream never fails the job.
func (d *Dispatcher) streamProgress(ctx context.Context, srv *model.Server, job *model.Job, promptID string) {
	ch := make(chan comfy.ProgressEvent, 16)
	go func() {
		if err := d.client.ListenProgress(ctx, srv.URL, ch); err != nil && ctx.Err() == nil {
			logger.Debug("progress stream closed", zap.String("server", srv.Name), zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if ev.PromptID == promptID {
				job.OnProgress(ev.Value, ev.Max)
			}
		}
	}
}
