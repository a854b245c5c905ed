package state

import (
	"context"

	"commandcenter/internal/logging"
	"commandcenter/internal/models"
	"commandcenter/internal/services"
)

// Subscriber bridges the change feed to a controller. Events are coarse (a
// table changed somewhere the user can see), so the reaction is a blunt
// re-fetch of the affected collection rather than any per-row patching.
type Subscriber struct {
	feed       *services.ChangeFeed
	controller *Controller
	userID     string
	subID      string

	ch   <-chan models.ChangeEvent
	done chan struct{}
}

// NewSubscriber registers with the feed for userID under subID. Call Start to
// begin consuming and Stop on session teardown.
func NewSubscriber(feed *services.ChangeFeed, controller *Controller, userID, subID string) *Subscriber {
	return &Subscriber{
		feed:       feed,
		controller: controller,
		userID:     userID,
		subID:      subID,
		ch:         feed.Subscribe(userID, subID, 32),
		done:       make(chan struct{}),
	}
}

// Start consumes feed events until Stop is called or ctx ends.
func (s *Subscriber) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case event := <-s.ch:
				s.handle(ctx, event)
			}
		}
	}()
}

func (s *Subscriber) handle(ctx context.Context, event models.ChangeEvent) {
	logger := logging.WithUser(s.userID)
	switch event.Table {
	case models.TableProjects:
		if err := s.controller.RefreshProjects(ctx); err != nil {
			logger.Warn("Project refresh failed", "error", err)
		}
	case models.TableTasks:
		if err := s.controller.RefreshTasks(ctx); err != nil {
			logger.Warn("Task refresh failed", "error", err)
		}
	case models.TableTaskActivity:
		// Only the open task's log is held locally; refresh is a no-op for
		// any other task.
		if err := s.controller.RefreshActivity(ctx, event.TaskID); err != nil {
			logger.Warn("Activity refresh failed", "task_id", event.TaskID, "error", err)
		}
	}
}

// Stop unregisters from the feed and ends the consume loop.
func (s *Subscriber) Stop() {
	close(s.done)
	s.feed.Unsubscribe(s.userID, s.subID)
}
