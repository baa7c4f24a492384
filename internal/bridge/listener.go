package bridge

import (
	"github.com/brianly1003/ideremote/internal/domain/ports"
)

// hostListener routes host events to the progress tracker and the run
// mirror. Task boundaries force a progress push.
type hostListener struct {
	b *Bridge
}

var _ ports.HostListener = (*hostListener)(nil)

func (l *hostListener) TaskStarted(ev ports.TaskEvent) {
	l.b.tracker.Start(ev)
	l.b.requestProgressPush()
}

func (l *hostListener) TaskUpdated(ev ports.TaskEvent) {
	l.b.tracker.Update(ev)
	if !ev.Running {
		l.b.requestProgressPush()
	}
}

func (l *hostListener) TaskFinished(id string) {
	l.b.tracker.Finish(id)
	l.b.requestProgressPush()
}

func (l *hostListener) ProcessStarted(ev ports.ProcessStart)   { l.b.mirror.ProcessStarted(ev) }
func (l *hostListener) ProcessOutput(ev ports.ProcessOutput)   { l.b.mirror.ProcessOutput(ev) }
func (l *hostListener) ProcessTerminated(ev ports.ProcessExit) { l.b.mirror.ProcessTerminated(ev) }
func (l *hostListener) BuildStarted(ev ports.BuildStart)       { l.b.mirror.BuildStarted(ev) }
func (l *hostListener) BuildMessage(ev ports.BuildMessage)     { l.b.mirror.BuildMessage(ev) }
func (l *hostListener) BuildFinished(ev ports.BuildResult)     { l.b.mirror.BuildFinished(ev) }
