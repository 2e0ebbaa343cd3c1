package hook

// Package hook defines the capability interfaces through which external code
// participates in the proxy data path: rewriting chunks before they are
// forwarded, observing trace entries as they are recorded, and consuming a
// finished trace.
//
// All hooks receive a *State, a mutable cell owned by the proxy instance that
// persists across invocations for one run and is reset on every start. Chunk
// transforms and trace observers are synchronous and run on the session's pump
// goroutine; they must not block. Trace writers may take their time and get a
// context.
