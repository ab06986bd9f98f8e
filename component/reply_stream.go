package component

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Alfresco/gytheio-sub001/message"
)

// replyStream publishes the replies of one request. It drops progress that
// moves backwards, progress arriving faster than the limiter allows, and any
// reply whose status may not follow the last one.
type replyStream struct {
	c       *Component
	ctx     context.Context
	req     message.Request
	address string
	limiter *rate.Limiter // nil publishes every progress update

	status       message.Status
	lastProgress float64
	reported     bool
}

func newReplyStream(ctx context.Context, c *Component, req message.Request, address string) *replyStream {
	s := &replyStream{c: c, ctx: ctx, req: req, address: address}
	if every := c.config.ProgressInterval; every > 0 {
		s.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
	return s
}

func (s *replyStream) started() {
	s.emit(message.NewStartedReply(s.req))
}

// progress is the worker.ProgressFunc handed to the processor.
func (s *replyStream) progress(p float64) {
	p = message.ClampProgress(p)
	if s.reported && p <= s.lastProgress {
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return
	}
	if s.emit(message.NewProgressReply(s.req, p)) {
		s.lastProgress = p
		s.reported = true
	}
}

func (s *replyStream) complete(results []message.Result) {
	s.emit(message.NewCompleteReply(s.req, results))
}

func (s *replyStream) failed(err error) {
	s.emit(message.NewFailedReply(s.req, err))
}

// emit publishes reply when its status may follow the last one. A reply
// that fails to publish still advances the stream.
func (s *replyStream) emit(reply *message.Reply) bool {
	if !reply.Status.CanFollow(s.status) {
		return false
	}
	s.status = reply.Status
	s.c.publish(s.ctx, s.address, reply)
	return true
}
