package message

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Alfresco/gytheio-sub001/errors"
)

// RequestFactory creates an empty request of one kind for decoding.
type RequestFactory func() Request

// OptionDecoder decodes one discriminated option object.
type OptionDecoder func(data []byte) (Option, error)

// OptionDecoderFor decodes option objects into values of type T.
func OptionDecoderFor[T Option]() OptionDecoder {
	return func(data []byte) (Option, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// registry maps wire discriminators to the types the codec reconstructs.
// New kinds are added by registration; the codec never switches on kinds.
type registry struct {
	requests map[string]RequestFactory
	replies  map[string]struct{}
	options  map[string]OptionDecoder
	mu       sync.RWMutex
}

var defaultRegistry = newBuiltinRegistry()

func newBuiltinRegistry() *registry {
	r := &registry{
		requests: make(map[string]RequestFactory),
		replies:  make(map[string]struct{}),
		options:  make(map[string]OptionDecoder),
	}
	r.requests[KindHashRequest] = func() Request { return &HashRequest{} }
	r.requests[KindTransformationRequest] = func() Request { return &TransformationRequest{} }
	r.replies[KindHashReply] = struct{}{}
	r.replies[KindTransformationReply] = struct{}{}
	r.options[KindTemporalOptions] = OptionDecoderFor[TemporalOptions]()
	r.options[KindCropOptions] = OptionDecoderFor[CropOptions]()
	r.options[KindResizeOptions] = OptionDecoderFor[ResizeOptions]()
	r.options[KindImageOptions] = OptionDecoderFor[ImageOptions]()
	r.options[KindPageRangeOptions] = OptionDecoderFor[PageRangeOptions]()
	return r
}

// RegisterRequest adds a request kind. The factory's requests must report
// kind from Kind.
func RegisterRequest(kind string, factory RequestFactory) error {
	if kind == "" || factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterRequest", "registration validation")
	}
	r := defaultRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[kind]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("request kind '%s' is already registered", kind),
			"Registry", "RegisterRequest", "duplicate kind check")
	}
	r.requests[kind] = factory
	return nil
}

// RegisterReply adds a reply kind.
func RegisterReply(kind string) error {
	if kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterReply", "registration validation")
	}
	r := defaultRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.replies[kind]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("reply kind '%s' is already registered", kind),
			"Registry", "RegisterReply", "duplicate kind check")
	}
	r.replies[kind] = struct{}{}
	return nil
}

// RegisterOption adds an option kind.
func RegisterOption(kind string, decode OptionDecoder) error {
	if kind == "" || decode == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterOption", "registration validation")
	}
	r := defaultRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.options[kind]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("option kind '%s' is already registered", kind),
			"Registry", "RegisterOption", "duplicate kind check")
	}
	r.options[kind] = decode
	return nil
}

// RegisteredRequestKinds lists known request kinds, sorted.
func RegisteredRequestKinds() []string {
	r := defaultRegistry
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.requests))
	for k := range r.requests {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *registry) requestFactory(kind string) (RequestFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.requests[kind]
	return f, ok
}

func (r *registry) hasReply(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.replies[kind]
	return ok
}

func (r *registry) optionDecoder(kind string) (OptionDecoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.options[kind]
	return d, ok
}
