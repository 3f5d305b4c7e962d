// Package wire implements the self-framing text protocol spoken between
// stores.
//
// A frame is a YAML document:
//
//	---
//	#seq: 7
//	#type: publish
//	#op: merge
//	#timeout: 2900      (init and sync requests only)
//	#flags: pr-u        (init only)
//
//	<body: diff text, possibly empty>
//	...
//
// A whisper frame carries a merge or delete meant for the store a node came
// from; its body starts with a "+whisper-target: <path>" line naming the node.
//
// Encode writes exactly one frame per call. Decoder reassembles frames from
// arbitrary read boundaries and reports when more complete frames are
// already buffered.
package wire
