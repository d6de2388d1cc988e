// Package deps defines the contract shared by dependency resolver engines
// and provides the two engines that do not need the network: the Compound
// resolver, which fans repository registration and artifact lookups out to
// an ordered list of engines, and the Filesystem resolver, which finds
// artifacts given as local file paths.
//
// Engines report an expected lookup failure ("not found in any repository")
// as a *ResolveError carrying diagnostics. Any other error returned from
// Resolve is treated by callers as an unexpected engine failure.
package deps
