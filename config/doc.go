// Package config loads the worker process configuration.
//
// Files are JSON (.json) or YAML (.yaml, .yml); both use the same
// snake_case field names. Every file is layered over Default, nested
// objects merging and lists replacing, then GYTHEIO_* environment
// variables override single fields:
//
//	nats:
//	  urls: [nats://nats-1:4222, nats://nats-2:4222]
//	  reconnect_wait: 2s
//	component:
//	  name: thumbnailer
//	  request_subject: gytheio.transform.requests
//	  reply_subject: gytheio.transform.replies
//	  queue_group: thumbnailers
//	worker:
//	  type: ffmpeg
//	  defaults:
//	    image: {quality: 80}
//	handlers:
//	  source:
//	    - {type: objectstore, bucket: media}
//	  target:
//	    - {type: objectstore, bucket: renditions}
//
// Durations accept Go duration strings, a day suffix ("14d"), or a number
// of nanoseconds.
package config
