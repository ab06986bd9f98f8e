package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Option is one transformation option value. OptionKind is its wire
// discriminator; a bag holds at most one value per kind.
type Option interface {
	OptionKind() string
}

// Built-in option kinds.
const (
	KindTemporalOptions  = "TemporalOptions"
	KindCropOptions      = "CropOptions"
	KindResizeOptions    = "ResizeOptions"
	KindImageOptions     = "ImageOptions"
	KindPageRangeOptions = "PageRangeOptions"
)

// TemporalOptions trims media to a time window. Zero values mean unset.
type TemporalOptions struct {
	OffsetSeconds   float64 `json:"offsetSeconds,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

func (TemporalOptions) OptionKind() string { return KindTemporalOptions }

// CropOptions crops frames to Width x Height at the given offset.
type CropOptions struct {
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	XOffset        int    `json:"xOffset"`
	YOffset        int    `json:"yOffset"`
	Gravity        string `json:"gravity,omitempty"`
	PercentageCrop bool   `json:"percentageCrop,omitempty"`
}

func (CropOptions) OptionKind() string { return KindCropOptions }

// ResizeOptions scales frames. A zero dimension follows the other one.
type ResizeOptions struct {
	Width               int  `json:"width,omitempty"`
	Height              int  `json:"height,omitempty"`
	MaintainAspectRatio bool `json:"maintainAspectRatio,omitempty"`
}

func (ResizeOptions) OptionKind() string { return KindResizeOptions }

// ImageOptions controls still-image output. Quality is 1 (worst) to 100.
type ImageOptions struct {
	Quality     int  `json:"quality,omitempty"`
	SingleFrame bool `json:"singleFrame,omitempty"`
}

func (ImageOptions) OptionKind() string { return KindImageOptions }

// PageRangeOptions selects pages of paged documents, 1-based and inclusive.
type PageRangeOptions struct {
	StartPage int `json:"startPage,omitempty"`
	EndPage   int `json:"endPage,omitempty"`
}

func (PageRangeOptions) OptionKind() string { return KindPageRangeOptions }

// RawOption holds an option of a kind this process has not registered. It
// is carried and re-encoded verbatim.
type RawOption struct {
	Kind string
	Data json.RawMessage
}

func (o RawOption) OptionKind() string { return o.Kind }

// Options is a kind-to-value mapping of transformation options. The zero
// value is not usable; create bags with NewOptions. Read methods accept a
// nil bag.
type Options struct {
	entries map[string]Option
}

// NewOptions creates a bag holding opts, later kinds replacing earlier ones.
func NewOptions(opts ...Option) *Options {
	o := &Options{entries: make(map[string]Option, len(opts))}
	for _, opt := range opts {
		o.Set(opt)
	}
	return o
}

// Set stores opt, replacing any value of the same kind.
func (o *Options) Set(opt Option) {
	if opt == nil {
		return
	}
	if o.entries == nil {
		o.entries = make(map[string]Option)
	}
	o.entries[opt.OptionKind()] = opt
}

// Get returns the value stored for kind.
func (o *Options) Get(kind string) (Option, bool) {
	if o == nil {
		return nil, false
	}
	opt, ok := o.entries[kind]
	return opt, ok
}

// Remove deletes the value stored for kind.
func (o *Options) Remove(kind string) {
	if o != nil {
		delete(o.entries, kind)
	}
}

// Len returns the number of kinds present.
func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.entries)
}

// Kinds returns the present kinds in sorted order.
func (o *Options) Kinds() []string {
	if o == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(o.entries))
}

// Clone returns an independent copy of o.
func (o *Options) Clone() *Options {
	c := NewOptions()
	if o != nil {
		maps.Copy(c.entries, o.entries)
	}
	return c
}

// Merge returns a new bag with every kind of overlay replacing the same
// kind of o. Neither input is modified.
func (o *Options) Merge(overlay *Options) *Options {
	merged := o.Clone()
	if overlay != nil {
		maps.Copy(merged.entries, overlay.entries)
	}
	return merged
}

// Lookup returns the value of kind T stored in o.
func Lookup[T Option](o *Options) (T, bool) {
	var zero T
	opt, ok := o.Get(zero.OptionKind())
	if !ok {
		return zero, false
	}
	v, ok := opt.(T)
	return v, ok
}

// MarshalJSON encodes the bag as an array of discriminated objects sorted
// by kind.
func (o *Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, kind := range o.Kinds() {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := encodeOption(o.entries[kind])
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an array of discriminated option objects. Kinds
// without a registered decoder are kept as RawOption.
func (o *Options) UnmarshalJSON(data []byte) error {
	o.entries = make(map[string]Option)
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	for _, item := range items {
		opt, err := decodeOption(item)
		if err != nil {
			return err
		}
		o.Set(opt)
	}
	return nil
}

func encodeOption(opt Option) ([]byte, error) {
	if raw, ok := opt.(RawOption); ok {
		if len(raw.Data) == 0 {
			return withClass(raw.Kind, []byte("{}"))
		}
		return raw.Data, nil
	}
	data, err := json.Marshal(opt)
	if err != nil {
		return nil, fmt.Errorf("option %s: %w", opt.OptionKind(), err)
	}
	return withClass(opt.OptionKind(), data)
}

func decodeOption(data json.RawMessage) (Option, error) {
	class, err := peekClass(data)
	if err != nil {
		return nil, fmt.Errorf("option: %w", err)
	}
	decode, ok := defaultRegistry.optionDecoder(class)
	if !ok {
		return RawOption{Kind: class, Data: slices.Clone(data)}, nil
	}
	opt, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("option %s: %w", class, err)
	}
	return opt, nil
}
