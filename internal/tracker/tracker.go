// Package tracker follows dispatched aria2 downloads until they finish.
package tracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/metrics"
)

// Source is the part of the aria2 client the tracker consumes.
type Source interface {
	Notifications(ctx context.Context) (<-chan aria2.Notification, error)
	TellStatus(ctx context.Context, gid string) (string, error)
}

// Summary lists job names by final state.
type Summary struct {
	Completed []string
	Failed    []string
	Stopped   []string
	// Pending is non-empty when Wait returned before every job finished.
	Pending []string
}

// Tracker consumes aria2 notifications for the GIDs it was told about.
type Tracker struct {
	src Source
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]string
	sum     Summary
}

var _ aria2.Recorder = (*Tracker)(nil)

func New(log *slog.Logger, src Source) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{src: src, log: log, pending: make(map[string]string)}
}

// Track registers gid under the job name.
func (t *Tracker) Track(gid, name string) {
	t.mu.Lock()
	t.pending[gid] = name
	metrics.TrackedDownloads.Set(float64(len(t.pending)))
	t.mu.Unlock()
}

// Pending returns the number of unfinished downloads.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Wait blocks until every tracked download reached a terminal state, the
// notification stream closes, or ctx ends.
func (t *Tracker) Wait(ctx context.Context) (Summary, error) {
	lg := t.log.With("operation_id", uuid.NewString())
	if t.Pending() == 0 {
		return t.summary(), nil
	}
	ch, err := t.src.Notifications(ctx)
	if err != nil {
		return t.summary(), err
	}

	// Downloads may have finished before the subscription existed.
	for _, gid := range t.gids() {
		st, err := t.src.TellStatus(ctx, gid)
		if err != nil {
			lg.Warn("tell status", "gid", gid, "err", err)
			continue
		}
		switch st {
		case "complete":
			t.finish(lg, gid, aria2.OnDownloadComplete)
		case "error":
			t.finish(lg, gid, aria2.OnDownloadError)
		case "removed":
			t.finish(lg, gid, aria2.OnDownloadStop)
		}
	}

	for t.Pending() > 0 {
		select {
		case <-ctx.Done():
			return t.summary(), ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return t.summary(), nil
			}
			for _, p := range n.Params {
				t.finish(lg, p.GID, n.Method)
			}
		}
	}
	return t.summary(), nil
}

func (t *Tracker) gids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pending))
	for gid := range t.pending {
		out = append(out, gid)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) finish(lg *slog.Logger, gid, method string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.pending[gid]
	if !ok {
		return
	}
	switch method {
	case aria2.OnDownloadComplete:
		t.sum.Completed = append(t.sum.Completed, name)
		metrics.DownloadEvents.WithLabelValues("complete").Inc()
		lg.Info("download complete", "job", name, "gid", gid)
	case aria2.OnDownloadError:
		t.sum.Failed = append(t.sum.Failed, name)
		metrics.DownloadEvents.WithLabelValues("failed").Inc()
		lg.Error("download failed", "job", name, "gid", gid)
	case aria2.OnDownloadStop:
		t.sum.Stopped = append(t.sum.Stopped, name)
		metrics.DownloadEvents.WithLabelValues("stopped").Inc()
		lg.Warn("download stopped", "job", name, "gid", gid)
	default:
		metrics.DownloadEvents.WithLabelValues("other").Inc()
		lg.Debug("download event", "job", name, "gid", gid, "method", method)
		return
	}
	delete(t.pending, gid)
	metrics.TrackedDownloads.Set(float64(len(t.pending)))
}

func (t *Tracker) summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{
		Completed: append([]string(nil), t.sum.Completed...),
		Failed:    append([]string(nil), t.sum.Failed...),
		Stopped:   append([]string(nil), t.sum.Stopped...),
	}
	for _, name := range t.pending {
		s.Pending = append(s.Pending, name)
	}
	sort.Strings(s.Pending)
	return s
}
