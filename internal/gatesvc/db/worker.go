package db

import (
	"context"
	"database/sql"
)

type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker runs write transactions one at a time on a single goroutine.
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close stops accepting jobs and waits for queued ones to finish.
func (w *Worker) Close() {
	close(w.jobs)
	<-w.done
}

// Do enqueues fn and waits for its result. If ctx ends first the
// transaction may still commit; the result is discarded.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		if j.ctx.Err() != nil {
			j.ch <- j.ctx.Err()
			continue
		}

		tx, err := w.db.BeginTx(j.ctx, nil)
		if err != nil {
			j.ch <- err
			continue
		}

		if err := j.fn(j.ctx, tx); err != nil {
			_ = tx.Rollback()
			j.ch <- err
			continue
		}

		j.ch <- tx.Commit()
	}
}
