// Package rpc defines the a11y.v1.Broker gRPC service: its messages, the
// service descriptor, and a client.
//
// # Encoding
//
// Messages are plain Go structs marshaled as JSON by a codec registered
// with grpc-go under the "json" content subtype. Clients made with
// NewBrokerClient select it on every call; other clients pass CallOption.
// The health service on the same server keeps using protobuf.
//
// # Methods
//
//	SendAccessibilityEvent  unary        report a UI event
//	Interrupt               unary        stop spoken feedback
//	ActiveWindowBounds      unary        frame of the active window
//	AddClient               server       client state bitmask, then changes
//	WindowStream            bidi         application window connection
//	ServiceStream           bidi         assistive service connection
//
// # Streams
//
// Stream envelopes (WindowMessage, WindowCommand, ServiceMessage,
// ServiceCommand) carry exactly one non-nil payload. A window stream opens
// with RegisterWindow and a service stream with AnnounceService; anything
// else first is rejected with InvalidArgument.
//
// Query ids are scoped to one stream. A service picks its own RequestID;
// the window it queries sees a different id chosen by the gateway, and
// results are relayed back under the service's id. A QueryReply tells the
// service whether the query was accepted and may arrive after the results.
package rpc
