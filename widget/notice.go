package widget

import (
	"github.com/sirupsen/logrus"
)

// NoticeKind classifies a user facing message.
type NoticeKind int

const (
	// CapReached means an enable was rejected by the cap.
	CapReached NoticeKind = iota
	// SaveFailed means the configuration could not be persisted. It is still
	// in effect in memory.
	SaveFailed
	// Saved confirms an explicit save from the panel.
	Saved
	// ResetDone confirms a reset.
	ResetDone
)

func (k NoticeKind) String() string {
	switch k {
	case CapReached:
		return "cap-reached"
	case SaveFailed:
		return "save-failed"
	case Saved:
		return "saved"
	case ResetDone:
		return "reset"
	}
	return "unknown"
}

// Notice is a message for whoever is showing the widget to a user.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Notifier receives notices. Implementations must not call back into the
// Widget synchronously.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

// logNotifier is used when the host does not supply a Notifier.
type logNotifier struct {
	log *logrus.Entry
}

func (l logNotifier) Notify(n Notice) {
	entry := l.log.WithField("notice", n.Kind.String())
	if n.Err != nil {
		entry.WithError(n.Err).Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}
