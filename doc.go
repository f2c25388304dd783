// Package gateway wires a declarative OpenAPI contract into a running HTTP
// server. The contract is the source of truth: it declares operations, their
// parameters and bodies, their security requirements, and the error table
// (x-errors) used to turn raised failures into client-facing payloads.
//
// A Gateway matches each inbound request to a declared operation and runs it
// through an ordered pipeline of stages:
//
//	bind → docs → switch → request log → validate → security → pre-handler →
//	dispatch → not found → error handler
//
// Responses pass through a separate outbound chain (post-handler debug, null
// pruning, response debug) before they are written.
//
// Handlers are bound to operations by operationId:
//
//	c, err := gateway.LoadContract("openapi.yaml")
//	g := gateway.New(c, gateway.WithEnvironment(gateway.Production))
//	gateway.Handle(g, "getUser", getUser)
//
// Any failure raised by a stage or handler is resolved against the error
// tables. While a handler is running, the operation's own x-errors entries
// take precedence over the global catalog:
//
//	return nil, gateway.Fail("QuotaExceeded")
//
// Failures that resolve to nothing are reclassified as InternalServerError and,
// in production, reported as incidents.
package gateway
