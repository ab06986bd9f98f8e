package message

import (
	"slices"

	"github.com/google/uuid"

	"github.com/Alfresco/gytheio-sub001/content"
)

// Request kinds and the reply kind each one produces.
const (
	KindHashRequest           = "HashRequest"
	KindTransformationRequest = "TransformationRequest"
	KindHashReply             = "HashReply"
	KindTransformationReply   = "TransformationReply"
)

// Request is implemented by every request kind. Kind is the wire
// discriminator; ReplyKind fixes the kind of every reply to the request.
type Request interface {
	Kind() string
	ReplyKind() string
	Envelope() *RequestEnvelope
}

// RequestEnvelope carries the fields shared by all requests. The request id
// is generated once on construction and is the only correlation key.
// Concrete request types embed it.
type RequestEnvelope struct {
	requestID string
	replyTo   string
	sources   []content.Reference
}

// NewRequestEnvelope creates an envelope with a fresh request id.
func NewRequestEnvelope(sources ...content.Reference) RequestEnvelope {
	return RequestEnvelope{
		requestID: uuid.NewString(),
		sources:   slices.Clone(sources),
	}
}

// Envelope returns e. It lets embedding types satisfy Request.
func (e *RequestEnvelope) Envelope() *RequestEnvelope {
	return e
}

// RequestID returns the correlation id.
func (e *RequestEnvelope) RequestID() string {
	return e.requestID
}

// ReplyTo returns the per-request reply address, empty when the receiver's
// default applies.
func (e *RequestEnvelope) ReplyTo() string {
	return e.replyTo
}

// SetReplyTo overrides the reply address for this request.
func (e *RequestEnvelope) SetReplyTo(address string) {
	e.replyTo = address
}

// SourceReferences returns the ordered source references.
func (e *RequestEnvelope) SourceReferences() []content.Reference {
	return slices.Clone(e.sources)
}

// HashRequest asks for the digest of every source reference.
type HashRequest struct {
	RequestEnvelope
	Algorithm string `json:"hashAlgorithm"`
}

// NewHashRequest creates a hash request for sources.
func NewHashRequest(algorithm string, sources ...content.Reference) *HashRequest {
	return &HashRequest{
		RequestEnvelope: NewRequestEnvelope(sources...),
		Algorithm:       algorithm,
	}
}

func (r *HashRequest) Kind() string      { return KindHashRequest }
func (r *HashRequest) ReplyKind() string { return KindHashReply }

// TransformationRequest asks for sources to be transformed into targets.
type TransformationRequest struct {
	RequestEnvelope
	Targets []content.Reference `json:"targetContentReferences"`
	Options *Options            `json:"options"`
}

// NewTransformationRequest creates a transformation request. A nil options
// bag is replaced by an empty one.
func NewTransformationRequest(sources, targets []content.Reference, options *Options) *TransformationRequest {
	if options == nil {
		options = NewOptions()
	}
	return &TransformationRequest{
		RequestEnvelope: NewRequestEnvelope(sources...),
		Targets:         slices.Clone(targets),
		Options:         options,
	}
}

func (r *TransformationRequest) Kind() string      { return KindTransformationRequest }
func (r *TransformationRequest) ReplyKind() string { return KindTransformationReply }
