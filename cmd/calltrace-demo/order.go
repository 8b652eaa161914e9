package main

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/calltrace"
)

// errIllegalItem is returned by the repository for the item id "ex".
var errIllegalItem = errors.New("illegal item")

// failingItem makes orderRepository.save fail.
const failingItem = "ex"

type orderRepository struct {
	trace calltrace.LogTrace
	work  time.Duration
}

func (r *orderRepository) save(ctx context.Context, itemID string) error {
	return r.trace.Trace(ctx, "OrderRepository.save()", func(ctx context.Context) error {
		if itemID == failingItem {
			return errIllegalItem
		}
		select {
		case <-time.After(r.work):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

type orderService struct {
	trace calltrace.LogTrace
	repo  *orderRepository
}

func (s *orderService) orderItem(ctx context.Context, itemID string) error {
	return s.trace.Trace(ctx, "OrderService.orderItem()", func(ctx context.Context) error {
		return s.repo.save(ctx, itemID)
	})
}

type orderController struct {
	trace   calltrace.LogTrace
	service *orderService
}

func newOrderController(trace calltrace.LogTrace, work time.Duration) *orderController {
	return &orderController{
		trace: trace,
		service: &orderService{
			trace: trace,
			repo:  &orderRepository{trace: trace, work: work},
		},
	}
}

// request uses explicit Begin/Exception/End rather than Trace, the way a
// handler that needs the status for its own response would.
func (c *orderController) request(ctx context.Context, itemID string) (string, error) {
	ctx, status := c.trace.Begin(ctx, "OrderController.request()")
	if err := c.service.orderItem(ctx, itemID); err != nil {
		_ = c.trace.Exception(status, err)
		return "", err
	}
	if err := c.trace.End(status); err != nil {
		return "", err
	}
	return "ok", nil
}
