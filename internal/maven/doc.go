// Package maven resolves Maven coordinates against remote (http, https) or
// local (file) Maven-layout repositories.
//
// Resolution walks the POM graph breadth first from the requested
// coordinate, applying parent POMs, properties, dependencyManagement,
// imported BOMs and exclusions. The first version seen for a given
// group:artifact wins. Artifacts are then downloaded concurrently into a
// local cache laid out like ~/.m2/repository and returned root-first.
//
// Version ranges, SNAPSHOT metadata, checksums and authenticated
// repositories are not supported.
package maven
