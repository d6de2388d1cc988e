// Package resolver turns the file annotations of a script into a classpath.
//
// ScriptDependenciesResolver walks a script's annotations in order.
// Repository annotations are registered with the underlying engines and
// DependsOn annotations are resolved one at a time. Failures are split in
// two tiers:
//
//   - Structurally invalid input (an annotation kind the resolver does not
//     know, or a repository no engine accepts) aborts the pass and is
//     returned as an error.
//   - A dependency that cannot be resolved, whether the engine reports a
//     failure or breaks unexpectedly, becomes a diagnostic. Processing
//     continues with the next annotation and all diagnostics are returned
//     together in a failed model.ResolveResult.
//
// Files resolved successfully are also appended to an accumulator that
// survives across calls. A notebook kernel drains it with PopAddedClasspath
// after each cell to extend its running classpath.
package resolver
