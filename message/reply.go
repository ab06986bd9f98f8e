package message

import (
	"math"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/errors"
)

// Status is the position of a reply in its request's reply stream.
type Status string

// Reply statuses.
const (
	StatusStarted    Status = "STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no reply may follow s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusStarted, StatusInProgress, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// CanFollow reports whether s may be observed after prev in one reply
// stream. An empty prev means no reply has been observed yet.
//
//	STARTED -> IN_PROGRESS* -> COMPLETE | FAILED
func (s Status) CanFollow(prev Status) bool {
	switch prev {
	case "":
		return s == StatusStarted
	case StatusStarted, StatusInProgress:
		return s == StatusInProgress || s.IsTerminal()
	default:
		return false
	}
}

// Result is one produced or inspected reference with string details.
type Result struct {
	ContentReference content.Reference `json:"contentReference"`
	Details          map[string]string `json:"details"`
}

// Failure describes why a request failed.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Reply is a message in a request's reply stream.
type Reply struct {
	Kind      string
	RequestID string
	Status    Status
	Progress  *float64 // IN_PROGRESS only
	Results   []Result // COMPLETE only
	Error     *Failure // FAILED only
}

// NewStartedReply acknowledges acceptance of req.
func NewStartedReply(req Request) *Reply {
	return newReply(req, StatusStarted)
}

// NewProgressReply reports progress, clamped to [0,1].
func NewProgressReply(req Request, progress float64) *Reply {
	r := newReply(req, StatusInProgress)
	p := ClampProgress(progress)
	r.Progress = &p
	return r
}

// NewCompleteReply carries the results of req.
func NewCompleteReply(req Request, results []Result) *Reply {
	r := newReply(req, StatusComplete)
	r.Results = results
	return r
}

// NewFailedReply reports err as the terminal outcome of req.
func NewFailedReply(req Request, err error) *Reply {
	r := newReply(req, StatusFailed)
	f := &Failure{Kind: errors.Kind(err)}
	if f.Kind == "" {
		f.Kind = errors.KindUnknown
	}
	if err != nil {
		f.Message = err.Error()
	}
	r.Error = f
	return r
}

func newReply(req Request, status Status) *Reply {
	return &Reply{
		Kind:      req.ReplyKind(),
		RequestID: req.Envelope().RequestID(),
		Status:    status,
	}
}

// ClampProgress limits p to [0,1].
func ClampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
