// Package registry loads routes.yaml and functions.yaml at startup and
// answers Match(method, path) and GetFunction(name) against the in-memory
// result. The path matcher is hand-rolled rather than backed by a
// general-purpose router: the contract under test is an exact linear
// scan in declaration order with first-match-wins and {name} placeholder
// capture, which a router library's own precedence rules would not
// reproduce byte-for-byte.
package registry
