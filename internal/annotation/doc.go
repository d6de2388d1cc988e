// Package annotation scans script sources for file annotations.
//
// A file annotation is written on its own line, before or between other
// code, in the form
//
//	@file:Name("argument", "another argument")
//
// Arguments are string literals, either escaped ("...") or raw ("""...""").
// Each argument becomes one model.Annotation of kind Name. The scanner does
// not judge kinds: unknown names are returned as-is and it is up to the
// caller to filter or reject them.
package annotation
