package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxBackgroundTasks = 64

// Dispatcher выполняет побочные действия, сбой которых не должен влиять на основную операцию:
// приветственные письма и уведомления. Ошибки только логируются.
type Dispatcher struct {
	group   errgroup.Group
	logger  *zap.Logger
	timeout time.Duration
}

// NewDispatcher создаёт диспетчер с ограничением времени на одну задачу.
func NewDispatcher(logger *zap.Logger, timeout time.Duration) *Dispatcher {
	return newDispatcher(logger, timeout, maxBackgroundTasks)
}

func newDispatcher(logger *zap.Logger, timeout time.Duration, limit int) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{logger: logger, timeout: timeout}
	d.group.SetLimit(limit)
	return d
}

// Go запускает задачу в фоне и никогда не блокирует вызывающего.
// Если все слоты заняты, задача отбрасывается с предупреждением в логе; результат false.
// Контекст задачи не зависит от контекста запроса.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) bool {
	started := d.group.TryGo(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("background task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()

		if err := fn(ctx); err != nil {
			d.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
		return nil
	})
	if !started {
		d.logger.Warn("background task dropped: too many tasks in flight", zap.String("task", name))
	}
	return started
}

// Wait дожидается завершения всех запущенных задач.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
}
