// Package server provides HTTP routing, middleware, and the local control surface for the playback client.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] and [Recoverer] are the two middlewares the serve command installs.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
// The bridge socket, the host page and the [ControlHandler] are all registered this way.
//
// # Control Surface
//
// [ControlHandler] serves the combined playback state as JSON and accepts transport commands:
//
//	GET  /state
//	GET  /devices[?refresh=1]
//	GET  /events
//	POST /control/{toggle,next,previous,seek,volume,shuffle,repeat,transfer,refresh}
//
// Failed commands answer with an [ErrorResponse] whose error field carries the user-facing hint, and a status chosen
// by [StatusFor] from the error kind.
//
// # Server Lifecycle
//
// [Serve] runs an [http.Server] until its context is cancelled, then shuts it down gracefully.
package server
