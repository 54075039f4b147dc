// Package trace records what the concatenation engine does with each
// notebook event.
//
// Enable tracing via command-line flags:
//
//	nbconcat serve --trace=- --trace-level=detail
//
// Commands attach the tracer to their context; libraries take it in their
// options:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeDocument, "refresh", 0)
//	defer span.End("")
//
// LevelError keeps failures only. LevelPhase adds server and notebook
// events, LevelDetail document rebuilds, LevelDebug every edit translation.
// A Stream writes events as they happen; a Ring keeps the newest ones in
// memory and the proxy dumps them when it drops an event.
package trace
