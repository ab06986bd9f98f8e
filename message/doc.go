// Package message defines the request/reply protocol spoken between clients
// and worker components, and its JSON codec.
//
// Every polymorphic value on the wire carries an "@class" discriminator as
// its first member:
//
//	{"@class":"TransformationRequest","requestId":"7c0e...","replyTo":null,
//	 "sourceContentReferences":[{"uri":"file:///in/a.mp4","mediaType":"video/mp4"}],
//	 "targetContentReferences":[{"uri":"file:///out/a.png","mediaType":"image/png"}],
//	 "options":[{"@class":"CropOptions","width":41,"height":40,"xOffset":0,"yOffset":0}]}
//
// Replies repeat the requestId and report a status. A reply stream for one
// request is STARTED, zero or more IN_PROGRESS with non-decreasing progress,
// then COMPLETE with results or FAILED with an error kind and message.
//
// # Extending
//
// Request, reply and option kinds are looked up in a registry. A new option
// kind needs a type implementing Option and one registration:
//
//	type WatermarkOptions struct {
//		Text string `json:"text"`
//	}
//
//	func (WatermarkOptions) OptionKind() string { return "WatermarkOptions" }
//
//	func init() {
//		_ = message.RegisterOption("WatermarkOptions", message.OptionDecoderFor[WatermarkOptions]())
//	}
//
// Option kinds a process has not registered decode to RawOption and are
// re-encoded unchanged, so intermediaries pass them through. Unknown request
// and reply kinds fail to decode.
//
// # Garbage prefixes
//
// Some transports prepend bytes before the JSON body. DecodeRequest and
// DecodeReply parse the body as-is first. Only when that fails, the body
// does not start with '{' and the reader is an io.Seeker, they rewind and
// retry from the first '{'.
package message
