package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/errors"
)

// classKey is the discriminator field carried first by every polymorphic
// object on the wire.
const classKey = "@class"

type wireEnvelope struct {
	Class     string              `json:"@class"`
	RequestID string              `json:"requestId"`
	ReplyTo   *string             `json:"replyTo"`
	Sources   []content.Reference `json:"sourceContentReferences"`
}

type wireReply struct {
	Class     string   `json:"@class"`
	RequestID string   `json:"requestId"`
	Status    Status   `json:"status"`
	Progress  *float64 `json:"progress,omitempty"`
	Results   []Result `json:"results,omitempty"`
	Error     *Failure `json:"error,omitempty"`
}

// EncodeRequest encodes req with its discriminator and envelope fields.
func EncodeRequest(req Request) ([]byte, error) {
	if req == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil request"), "Codec", "EncodeRequest", "validate request")
	}
	env := req.Envelope()
	head := wireEnvelope{
		Class:     req.Kind(),
		RequestID: env.requestID,
		Sources:   env.sources,
	}
	if env.replyTo != "" {
		replyTo := env.replyTo
		head.ReplyTo = &replyTo
	}
	if head.Sources == nil {
		head.Sources = []content.Reference{}
	}

	headData, err := json.Marshal(head)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeRequest", "marshal envelope")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeRequest", "marshal "+req.Kind())
	}
	return mergeObjects(headData, body), nil
}

// DecodeRequest reads one request from r. See decode for the tolerance of
// leading garbage.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	err := decode(r, "DecodeRequest", func(data []byte) error {
		var err error
		req, err = parseRequest(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// UnmarshalRequest decodes a request held in memory.
func UnmarshalRequest(data []byte) (Request, error) {
	return DecodeRequest(bytes.NewReader(data))
}

func parseRequest(data []byte) (Request, error) {
	var head wireEnvelope
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	if head.Class == "" {
		return nil, fmt.Errorf("missing %s", classKey)
	}
	factory, ok := defaultRegistry.requestFactory(head.Class)
	if !ok {
		return nil, fmt.Errorf("unknown request kind %q", head.Class)
	}
	if head.RequestID == "" {
		return nil, fmt.Errorf("missing requestId")
	}

	req := factory()
	if err := json.Unmarshal(data, req); err != nil {
		return nil, err
	}
	env := req.Envelope()
	env.requestID = head.RequestID
	env.sources = head.Sources
	env.replyTo = ""
	if head.ReplyTo != nil {
		env.replyTo = *head.ReplyTo
	}
	return req, nil
}

// EncodeReply encodes reply with its discriminator first.
func EncodeReply(reply *Reply) ([]byte, error) {
	if reply == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil reply"), "Codec", "EncodeReply", "validate reply")
	}
	data, err := json.Marshal(wireReply{
		Class:     reply.Kind,
		RequestID: reply.RequestID,
		Status:    reply.Status,
		Progress:  reply.Progress,
		Results:   reply.Results,
		Error:     reply.Error,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeReply", "marshal reply")
	}
	return data, nil
}

// DecodeReply reads one reply from r.
func DecodeReply(r io.Reader) (*Reply, error) {
	var reply *Reply
	err := decode(r, "DecodeReply", func(data []byte) error {
		var err error
		reply, err = parseReply(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// UnmarshalReply decodes a reply held in memory.
func UnmarshalReply(data []byte) (*Reply, error) {
	return DecodeReply(bytes.NewReader(data))
}

func parseReply(data []byte) (*Reply, error) {
	var w wireReply
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.Class == "" {
		return nil, fmt.Errorf("missing %s", classKey)
	}
	if !defaultRegistry.hasReply(w.Class) {
		return nil, fmt.Errorf("unknown reply kind %q", w.Class)
	}
	if !w.Status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", w.Status)
	}
	return &Reply{
		Kind:      w.Class,
		RequestID: w.RequestID,
		Status:    w.Status,
		Progress:  w.Progress,
		Results:   w.Results,
		Error:     w.Error,
	}, nil
}

// decode reads r fully and hands the body to parse. When parsing fails and
// the body does not start with '{', the reader is rewound if it is an
// io.Seeker and parsing is retried from the first '{'. Bodies that start
// with '{' never take the fallback, so malformed JSON fails on first parse.
func decode(r io.Reader, method string, parse func([]byte) error) error {
	var start int64
	seeker, seekable := r.(io.Seeker)
	if seekable {
		pos, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			seekable = false
		} else {
			start = pos
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Deserialization(err, "Codec", method, "read body")
	}

	parseErr := parse(data)
	if parseErr == nil {
		return nil
	}
	if !seekable || startsWithObject(data) {
		return errors.Deserialization(parseErr, "Codec", method, "parse body")
	}

	if _, err := seeker.Seek(start, io.SeekStart); err != nil {
		return errors.Deserialization(parseErr, "Codec", method, "rewind body")
	}
	reread, err := io.ReadAll(r)
	if err != nil {
		return errors.Deserialization(parseErr, "Codec", method, "re-read body")
	}
	idx := bytes.IndexByte(reread, '{')
	if idx < 0 {
		return errors.Deserialization(parseErr, "Codec", method, "locate object start")
	}
	if err := parse(reread[idx:]); err != nil {
		return errors.Deserialization(err, "Codec", method, "parse body after prefix")
	}
	return nil
}

func startsWithObject(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// withClass returns the JSON object data with the discriminator inserted as
// its first member.
func withClass(kind string, data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) < 2 || data[0] != '{' {
		return nil, fmt.Errorf("%s: encoded value is not an object", kind)
	}
	class, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"` + classKey + `":`)
	buf.Write(class)
	rest := bytes.TrimSpace(data[1:])
	if len(rest) > 0 && rest[0] != '}' {
		buf.WriteByte(',')
	}
	buf.Write(rest)
	return buf.Bytes(), nil
}

// mergeObjects concatenates the members of two encoded JSON objects.
func mergeObjects(head, body []byte) []byte {
	body = bytes.TrimSpace(body)
	if len(body) <= 2 {
		return head
	}
	merged := make([]byte, 0, len(head)+len(body))
	merged = append(merged, head[:len(head)-1]...)
	merged = append(merged, ',')
	merged = append(merged, body[1:]...)
	return merged
}

// peekClass returns the discriminator of an encoded object.
func peekClass(data []byte) (string, error) {
	var head struct {
		Class string `json:"@class"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.Class == "" {
		return "", fmt.Errorf("missing %s", classKey)
	}
	return head.Class, nil
}
