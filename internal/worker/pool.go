// Package worker runs fire-and-forget background tasks for the session
// coordinator. Callers never wait on a task they submit.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrTaskPanic = errors.New("worker: task panic")

// Pool is unbounded: every Go call gets its own goroutine. A panicking task
// is recovered and logged and never takes the pool down.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	logger *logrus.Logger
}

func NewPool(parent context.Context, log *logrus.Logger) *Pool {
	if log == nil {
		log = logger.NewLogger()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		group:  &errgroup.Group{},
		logger: log,
	}
}

// Go runs fn on its own goroutine. fn receives the pool context, which is
// cancelled by Stop.
func (p *Pool) Go(name string, fn func(ctx context.Context)) {
	p.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s: %v", ErrTaskPanic, name, r)
				p.logger.WithField("task", name).WithError(err).Error("Task crashed")
			}
		}()
		fn(p.ctx)
		return nil
	})
}

// Stop cancels the pool context. Running tasks are not waited for.
func (p *Pool) Stop() {
	p.cancel()
}

// Wait blocks until every submitted task has returned and reports the first
// panic, if any.
func (p *Pool) Wait() error {
	return p.group.Wait()
}
