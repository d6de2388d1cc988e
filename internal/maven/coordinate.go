package maven

import (
	"fmt"
	"path"
	"strings"
)

// Coordinate identifies a single Maven artifact.
//
// The textual form is group:artifact[:packaging[:classifier]]:version,
// the same form accepted by `mvn dependency:get -Dartifact=...`.
type Coordinate struct {
	GroupID    string
	ArtifactID string
	// Packaging is the artifact type; empty means "jar".
	Packaging string
	// Classifier is optional, e.g. "sources" or "linux-x86_64".
	Classifier string
	Version    string
}

// ParseCoordinate parses the textual coordinate form. Every part must be
// non-empty and free of whitespace and path separators.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t/\\") {
			return Coordinate{}, fmt.Errorf("invalid maven coordinate %q", s)
		}
	}

	switch len(parts) {
	case 3:
		return Coordinate{GroupID: parts[0], ArtifactID: parts[1], Version: parts[2]}, nil
	case 4:
		return Coordinate{GroupID: parts[0], ArtifactID: parts[1], Packaging: parts[2], Version: parts[3]}, nil
	case 5:
		return Coordinate{GroupID: parts[0], ArtifactID: parts[1], Packaging: parts[2], Classifier: parts[3], Version: parts[4]}, nil
	default:
		return Coordinate{}, fmt.Errorf("invalid maven coordinate %q: expected group:artifact[:packaging[:classifier]]:version", s)
	}
}

// String returns the textual form. Packaging is only written when it or a
// classifier is set.
func (c Coordinate) String() string {
	parts := []string{c.GroupID, c.ArtifactID}
	if c.Packaging != "" || c.Classifier != "" {
		parts = append(parts, c.packaging())
	}
	if c.Classifier != "" {
		parts = append(parts, c.Classifier)
	}
	parts = append(parts, c.Version)
	return strings.Join(parts, ":")
}

// Key identifies the artifact independent of its version. Two coordinates
// with the same key are the same library for conflict purposes.
func (c Coordinate) Key() string {
	if c.Classifier != "" {
		return c.GroupID + ":" + c.ArtifactID + ":" + c.Classifier
	}
	return c.GroupID + ":" + c.ArtifactID
}

// IsPOM reports whether the coordinate only has a POM and no binary.
func (c Coordinate) IsPOM() bool {
	return c.Packaging == "pom"
}

// ArtifactPath returns the repository-relative path of the artifact file.
func (c Coordinate) ArtifactPath() string {
	name := c.ArtifactID + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	return path.Join(c.dir(), name+"."+c.extension())
}

// POMPath returns the repository-relative path of the artifact's POM.
func (c Coordinate) POMPath() string {
	return path.Join(c.dir(), c.ArtifactID+"-"+c.Version+".pom")
}

func (c Coordinate) dir() string {
	return path.Join(strings.ReplaceAll(c.GroupID, ".", "/"), c.ArtifactID, c.Version)
}

func (c Coordinate) packaging() string {
	if c.Packaging == "" {
		return "jar"
	}
	return c.Packaging
}

// extension maps a packaging to the file extension Maven publishes it with.
// OSGi bundles and plugins are ordinary jars on disk.
func (c Coordinate) extension() string {
	switch c.packaging() {
	case "bundle", "maven-plugin", "eclipse-plugin", "test-jar", "ejb":
		return "jar"
	default:
		return c.packaging()
	}
}
