package aria2

import (
	"context"
	"log/slog"
)

// Recorder is told about every GID a Dispatcher creates.
type Recorder interface {
	Track(gid, name string)
}

// Dispatcher submits projected jobs to aria2 and hands the resulting GIDs to
// an optional Recorder.
type Dispatcher struct {
	cl  *Client
	rec Recorder
	log *slog.Logger
}

func NewDispatcher(cl *Client, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{cl: cl, log: log}
}

// SetRecorder wires a tracker into the dispatcher.
func (d *Dispatcher) SetRecorder(r Recorder) { d.rec = r }

func (d *Dispatcher) Send(ctx context.Context, jobs []Job, batch bool) error {
	gids, err := d.cl.AddURIs(ctx, jobs, batch)
	queued := 0
	for i, gid := range gids {
		if gid == "" {
			continue
		}
		queued++
		d.log.Debug("aria2 job queued", "job", jobs[i].ID, "gid", gid)
		if d.rec != nil {
			d.rec.Track(gid, jobs[i].ID)
		}
	}
	if err != nil {
		d.log.Error("aria2 dispatch failed", "err", err, "jobs", len(jobs), "queued", queued)
		return err
	}
	d.log.Info("aria2 jobs queued", "jobs", len(jobs), "batch", batch)
	return nil
}
