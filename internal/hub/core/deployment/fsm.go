package deployment

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/roidota/roidota/internal/hub/core/model"
	fsmutil "github.com/roidota/roidota/internal/pkg/util/fsm"
)

const (
	// EventProgress records that the device started installing.
	EventProgress = "event_progress"
	// EventSucceed records a positive acknowledgement.
	EventSucceed = "event_succeed"
	// EventFail records a negative acknowledgement or a failed dispatch.
	EventFail = "event_fail"
	// EventTimeout records that no acknowledgement arrived in time.
	EventTimeout = "event_timeout"
)

// TimeoutMessage is stored on records terminalized by the timeout sweep.
const TimeoutMessage = "deployment timed out waiting for device acknowledgement"

const defaultFailureMessage = "device reported failure"

var (
	pending    = string(model.DeploymentPending)
	inProgress = string(model.DeploymentInProgress)
	open       = []string{pending, inProgress}
)

// lifecycle drives one record through its states. Terminal states have no
// outgoing events, so firing anything at a terminal record is refused.
type lifecycle struct {
	*fsm.FSM
	rec *model.DeploymentRecord
	now func() time.Time
}

func newLifecycle(rec *model.DeploymentRecord, now func() time.Time) *lifecycle {
	l := &lifecycle{rec: rec, now: now}

	events := fsm.Events{
		{Name: EventProgress, Src: []string{pending}, Dst: inProgress},
		{Name: EventSucceed, Src: open, Dst: string(model.DeploymentSuccess)},
		{Name: EventFail, Src: open, Dst: string(model.DeploymentFailed)},
		{Name: EventTimeout, Src: open, Dst: string(model.DeploymentTimeout)},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(l.actionEnterState),

		"enter_" + string(model.DeploymentSuccess): fsmutil.WrapEvent(l.actionEnterSucceeded),
		"enter_" + string(model.DeploymentFailed):  fsmutil.WrapEvent(l.actionEnterFailed),
		"enter_" + string(model.DeploymentTimeout): fsmutil.WrapEvent(l.actionEnterTimedOut),
	}

	l.FSM = fsm.NewFSM(string(rec.Status), events, callbacks)
	return l
}

// fire triggers event on the record. A refused transition is reported as
// (false, nil); any other error is returned.
func (l *lifecycle) fire(ctx context.Context, event string, args ...any) (bool, error) {
	err := l.Event(ctx, event, args...)
	if err == nil {
		return true, nil
	}
	if fsmutil.IsRefused(err) {
		return false, nil
	}
	return false, err
}

func (l *lifecycle) actionEnterState(_ context.Context, e *fsm.Event) error {
	l.rec.Status = model.DeploymentStatus(e.Dst)
	return nil
}

func (l *lifecycle) actionEnterSucceeded(_ context.Context, _ *fsm.Event) error {
	l.complete("")
	return nil
}

func (l *lifecycle) actionEnterFailed(_ context.Context, e *fsm.Event) error {
	l.complete(fsmutil.MessageArg(e, defaultFailureMessage))
	return nil
}

func (l *lifecycle) actionEnterTimedOut(_ context.Context, _ *fsm.Event) error {
	l.complete(TimeoutMessage)
	return nil
}

func (l *lifecycle) complete(msg string) {
	at := l.now()
	l.rec.CompletedAt = &at
	l.rec.ErrorMessage = msg
}
