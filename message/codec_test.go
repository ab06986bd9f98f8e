package message

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/errors"
)

func sampleTransformation() *TransformationRequest {
	src := content.NewReference("file:///in/clip.mp4", "video/mp4").WithSize(1024)
	dst := content.NewReference("file:///out/thumb.png", "image/png")
	req := NewTransformationRequest(
		[]content.Reference{src},
		[]content.Reference{dst},
		NewOptions(
			CropOptions{Width: 41, Height: 40},
			TemporalOptions{OffsetSeconds: 1.5, DurationSeconds: 2},
		),
	)
	req.SetReplyTo("gytheio.replies.a")
	return req
}

func TestEncodeRequest_DiscriminatorFirst(t *testing.T) {
	data, err := EncodeRequest(sampleTransformation())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(data), `{"@class":"TransformationRequest","requestId":"`), string(data))
	assert.Contains(t, string(data), `"replyTo":"gytheio.replies.a"`)
	assert.Contains(t, string(data),
		`"options":[{"@class":"CropOptions","width":41,"height":40,"xOffset":0,"yOffset":0},`+
			`{"@class":"TemporalOptions","offsetSeconds":1.5,"durationSeconds":2}]`)
}

func TestEncodeRequest_NullReplyTo(t *testing.T) {
	data, err := EncodeRequest(NewHashRequest("MD5", content.NewReference("file:///a", "text/plain")))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Contains(t, generic, "replyTo")
	assert.Nil(t, generic["replyTo"])
	assert.Equal(t, "MD5", generic["hashAlgorithm"])
}

func TestRequest_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"transformation", sampleTransformation()},
		{"hash", NewHashRequest("SHA-256",
			content.NewReference("file:///a", "text/plain"),
			content.NewReference("objectstore://content/b", "text/plain").WithAttribute("owner", "x"))},
		{"empty transformation", NewTransformationRequest(nil, nil, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := EncodeRequest(tt.req)
			require.NoError(t, err)

			decoded, err := UnmarshalRequest(first)
			require.NoError(t, err)
			assert.Equal(t, tt.req.Kind(), decoded.Kind())
			assert.Equal(t, tt.req.Envelope().RequestID(), decoded.Envelope().RequestID())
			assert.Equal(t, tt.req.Envelope().ReplyTo(), decoded.Envelope().ReplyTo())

			second, err := EncodeRequest(decoded)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestRequest_RoundTripKeepsCrop(t *testing.T) {
	data, err := EncodeRequest(sampleTransformation())
	require.NoError(t, err)

	decoded, err := UnmarshalRequest(data)
	require.NoError(t, err)
	tr, ok := decoded.(*TransformationRequest)
	require.True(t, ok)

	crop, ok := Lookup[CropOptions](tr.Options)
	require.True(t, ok)
	assert.Equal(t, 41, crop.Width)
	assert.Equal(t, 40, crop.Height)

	sources := tr.SourceReferences()
	require.Len(t, sources, 1)
	size, ok := sources[0].Size()
	require.True(t, ok)
	assert.Equal(t, int64(1024), size)
	require.Len(t, tr.Targets, 1)
	assert.Equal(t, "image/png", tr.Targets[0].MediaType())
}

func TestDecodeRequest_UnknownFieldsIgnored(t *testing.T) {
	body := `{"@class":"HashRequest","requestId":"r-1","replyTo":null,"futureField":{"a":1},
		"sourceContentReferences":[{"uri":"file:///a","mediaType":"text/plain","extra":true}],
		"hashAlgorithm":"SHA-512"}`

	req, err := UnmarshalRequest([]byte(body))
	require.NoError(t, err)
	hr, ok := req.(*HashRequest)
	require.True(t, ok)
	assert.Equal(t, "r-1", hr.RequestID())
	assert.Equal(t, "SHA-512", hr.Algorithm)
	assert.Empty(t, hr.ReplyTo())
}

func TestDecodeRequest_UnknownOptionPreserved(t *testing.T) {
	body := `{"@class":"TransformationRequest","requestId":"r-2","replyTo":null,
		"sourceContentReferences":[],"targetContentReferences":[],
		"options":[{"@class":"WatermarkOptions","text":"draft","opacity":0.5}]}`

	req, err := UnmarshalRequest([]byte(body))
	require.NoError(t, err)
	tr := req.(*TransformationRequest)

	opt, ok := tr.Options.Get("WatermarkOptions")
	require.True(t, ok)
	_, isRaw := opt.(RawOption)
	assert.True(t, isRaw)

	data, err := EncodeRequest(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"@class":"WatermarkOptions","text":"draft","opacity":0.5}`)
}

func TestDecodeRequest_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"@class":"HashRequest",`},
		{"unknown kind", `{"@class":"ShredRequest","requestId":"r"}`},
		{"missing class", `{"requestId":"r"}`},
		{"missing request id", `{"@class":"HashRequest","hashAlgorithm":"MD5"}`},
		{"option without class", `{"@class":"TransformationRequest","requestId":"r","options":[{"width":1}]}`},
		{"no object at all", `garbage only`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := UnmarshalRequest([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, req)
			assert.ErrorIs(t, err, errors.ErrDeserialization)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

// onceReader hides Seek so the codec cannot rewind.
type onceReader struct {
	io.Reader
}

func TestDecodeRequest_GarbagePrefix(t *testing.T) {
	clean, err := EncodeRequest(sampleTransformation())
	require.NoError(t, err)
	prefixed := append([]byte("\x00\x01JMSgarbage"), clean...)

	t.Run("seekable", func(t *testing.T) {
		req, err := DecodeRequest(bytes.NewReader(prefixed))
		require.NoError(t, err)
		again, err := EncodeRequest(req)
		require.NoError(t, err)
		assert.Equal(t, string(clean), string(again))
	})

	t.Run("not seekable", func(t *testing.T) {
		req, err := DecodeRequest(onceReader{bytes.NewReader(prefixed)})
		require.Error(t, err)
		assert.Nil(t, req)
		assert.ErrorIs(t, err, errors.ErrDeserialization)
	})

	t.Run("seekable mid stream", func(t *testing.T) {
		r := bytes.NewReader(append([]byte("HDR"), prefixed...))
		_, err := r.Seek(3, io.SeekStart)
		require.NoError(t, err)
		_, err = DecodeRequest(r)
		assert.NoError(t, err)
	})
}

func TestDecodeRequest_MalformedObjectSkipsFallback(t *testing.T) {
	// A body that starts with '{' is never re-scanned even when a later '{'
	// would parse.
	body := `{"broken" {"@class":"HashRequest","requestId":"r","hashAlgorithm":"MD5"}`
	_, err := DecodeRequest(strings.NewReader(body))
	assert.ErrorIs(t, err, errors.ErrDeserialization)
}

func TestReply_RoundTrip(t *testing.T) {
	req := sampleTransformation()
	replies := []*Reply{
		NewStartedReply(req),
		NewProgressReply(req, 0.25),
		NewCompleteReply(req, []Result{{
			ContentReference: content.NewReference("file:///out/thumb.png", "image/png").WithSize(99),
			Details:          map[string]string{"duration": "2.000"},
		}}),
		NewFailedReply(req, errors.IO(io.ErrUnexpectedEOF, "Test", "Run", "read")),
	}

	for _, reply := range replies {
		t.Run(string(reply.Status), func(t *testing.T) {
			first, err := EncodeReply(reply)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(first), `{"@class":"TransformationReply"`))

			decoded, err := UnmarshalReply(first)
			require.NoError(t, err)
			assert.Equal(t, reply.RequestID, decoded.RequestID)
			assert.Equal(t, reply.Status, decoded.Status)

			second, err := EncodeReply(decoded)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestReply_WireShape(t *testing.T) {
	req := NewHashRequest("MD5")

	data, err := EncodeReply(NewStartedReply(req))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "progress")
	assert.NotContains(t, string(data), "error")

	data, err = EncodeReply(NewFailedReply(req, errors.AlgorithmUnsupported("Test", "Run", "CRC7")))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "FAILED", generic["status"])
	failure := generic["error"].(map[string]any)
	assert.Equal(t, "AlgorithmUnsupported", failure["kind"])
	assert.Contains(t, failure["message"], "CRC7")
}

func TestDecodeReply_Failures(t *testing.T) {
	_, err := UnmarshalReply([]byte(`{"@class":"MysteryReply","requestId":"r","status":"STARTED"}`))
	assert.ErrorIs(t, err, errors.ErrDeserialization)

	_, err = UnmarshalReply([]byte(`{"@class":"HashReply","requestId":"r","status":"PAUSED"}`))
	assert.ErrorIs(t, err, errors.ErrDeserialization)
}

func TestDecodeReply_GarbagePrefix(t *testing.T) {
	data, err := EncodeReply(NewProgressReply(NewHashRequest("MD5"), 0.5))
	require.NoError(t, err)

	reply, err := DecodeReply(bytes.NewReader(append([]byte("??"), data...)))
	require.NoError(t, err)
	require.NotNil(t, reply.Progress)
	assert.Equal(t, 0.5, *reply.Progress)
}

type stampOptions struct {
	Label string `json:"label"`
}

func (stampOptions) OptionKind() string { return "StampOptions" }

func TestRegisterOption(t *testing.T) {
	_ = RegisterOption("StampOptions", OptionDecoderFor[stampOptions]())
	assert.Error(t, RegisterOption("StampOptions", OptionDecoderFor[stampOptions]()))
	assert.Error(t, RegisterOption(KindCropOptions, OptionDecoderFor[CropOptions]()))
	assert.Error(t, RegisterOption("", nil))

	req := NewTransformationRequest(nil, nil, NewOptions(stampOptions{Label: "A"}))
	data, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := UnmarshalRequest(data)
	require.NoError(t, err)
	stamp, ok := Lookup[stampOptions](decoded.(*TransformationRequest).Options)
	require.True(t, ok)
	assert.Equal(t, "A", stamp.Label)
}

func TestRegisterRequest_Duplicate(t *testing.T) {
	assert.Error(t, RegisterRequest(KindHashRequest, func() Request { return &HashRequest{} }))
	assert.Error(t, RegisterReply(KindHashReply))
	assert.Contains(t, RegisteredRequestKinds(), KindTransformationRequest)
}

func TestWithClass(t *testing.T) {
	data, err := withClass("X", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `{"@class":"X"}`, string(data))

	_, err = withClass("X", []byte(`[1]`))
	assert.Error(t, err)
}
