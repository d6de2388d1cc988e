package maven

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// pom is the subset of a Maven POM that dependency resolution needs.
// Element names are matched without namespace, so both namespaced and
// bare POMs decode.
type pom struct {
	XMLName    xml.Name        `xml:"project"`
	GroupID    string          `xml:"groupId"`
	ArtifactID string          `xml:"artifactId"`
	Version    string          `xml:"version"`
	Packaging  string          `xml:"packaging"`
	Parent     *pomParent      `xml:"parent"`
	Properties pomProperties   `xml:"properties"`
	Managed    []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
	Deps       []pomDependency `xml:"dependencies>dependency"`
}

type pomParent struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
}

type pomDependency struct {
	GroupID    string         `xml:"groupId"`
	ArtifactID string         `xml:"artifactId"`
	Version    string         `xml:"version"`
	Type       string         `xml:"type"`
	Classifier string         `xml:"classifier"`
	Scope      string         `xml:"scope"`
	Optional   string         `xml:"optional"`
	Exclusions []pomExclusion `xml:"exclusions>exclusion"`
}

type pomExclusion struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
}

// key mirrors Coordinate.Key for a declared dependency.
func (d pomDependency) key() string {
	if d.Classifier != "" {
		return d.GroupID + ":" + d.ArtifactID + ":" + d.Classifier
	}
	return d.GroupID + ":" + d.ArtifactID
}

// isRuntime reports whether the dependency is needed on the classpath of a
// consumer: compile and runtime scope, not optional.
func (d pomDependency) isRuntime() bool {
	if strings.EqualFold(strings.TrimSpace(d.Optional), "true") {
		return false
	}
	switch d.Scope {
	case "", "compile", "runtime":
		return true
	default:
		return false
	}
}

// pomProperties decodes the free-form <properties> block, where every child
// element name is a property key.
type pomProperties map[string]string

func (p *pomProperties) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	props := pomProperties{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var v string
			if err := d.DecodeElement(&v, &t); err != nil {
				return err
			}
			props[t.Name.Local] = strings.TrimSpace(v)
		case xml.EndElement:
			*p = props
			return nil
		}
	}
}

func parsePOM(data []byte) (*pom, error) {
	var p pom
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse POM: %w", err)
	}
	return &p, nil
}

// effectivePOM is a POM with its parent chain merged and properties
// interpolated.
//
// Inheritance is applied to the raw declarations first and interpolation
// runs once on the merged result, so a property or version overridden by a
// child also applies to dependencies declared in its parents.
type effectivePOM struct {
	groupID    string
	artifactID string
	version    string
	packaging  string

	// rawProps holds the declared properties of the chain, child over parent.
	rawProps map[string]string
	// rawManaged and rawDeps hold uninterpolated declarations of the
	// chain, child first, inherited entries dropped when the child
	// redeclares the same key.
	rawManaged []pomDependency
	rawDeps    []pomDependency
	// imported maps keys to versions taken from imported BOMs. These are
	// already interpolated in the BOM's own context.
	imported map[string]string

	// props is rawProps plus the project.* values of this POM.
	props map[string]string
	// managed maps a dependency key to its managed version.
	managed map[string]string
	deps    []pomDependency
}

// merge layers child over parent, following Maven inheritance: coordinates
// and properties are inherited, dependencies and managed versions are
// inherited and overridden by key.
func merge(parent *effectivePOM, child *pom) *effectivePOM {
	eff := &effectivePOM{
		groupID:    child.GroupID,
		artifactID: child.ArtifactID,
		version:    child.Version,
		packaging:  child.Packaging,
		rawProps:   map[string]string{},
		imported:   map[string]string{},
		props:      map[string]string{},
		managed:    map[string]string{},
	}

	if parent != nil {
		if eff.groupID == "" {
			eff.groupID = parent.groupID
		}
		if eff.version == "" {
			eff.version = parent.version
		}
		for k, v := range parent.rawProps {
			eff.rawProps[k] = v
		}
		for k, v := range parent.imported {
			eff.imported[k] = v
		}
	}
	if eff.packaging == "" {
		eff.packaging = "jar"
	}
	for k, v := range child.Properties {
		eff.rawProps[k] = v
	}

	var inheritedManaged, inheritedDeps []pomDependency
	if parent != nil {
		inheritedManaged, inheritedDeps = parent.rawManaged, parent.rawDeps
	}
	eff.rawManaged = overlay(child.Managed, inheritedManaged)
	eff.rawDeps = overlay(child.Deps, inheritedDeps)

	for k, v := range eff.rawProps {
		eff.props[k] = v
	}
	if parent != nil {
		eff.props["project.parent.groupId"] = parent.groupID
		eff.props["project.parent.version"] = parent.version
	}
	// CI-friendly versions such as ${revision} come from properties.
	eff.groupID = eff.interpolate(eff.groupID)
	eff.version = eff.interpolate(eff.version)
	eff.props["project.groupId"] = eff.groupID
	eff.props["project.artifactId"] = eff.artifactID
	eff.props["project.version"] = eff.version
	eff.props["pom.groupId"] = eff.groupID
	eff.props["pom.version"] = eff.version
	eff.props["version"] = eff.version

	for _, d := range eff.rawManaged {
		d = eff.interpolateDep(d)
		if _, ok := eff.managed[d.key()]; !ok {
			eff.managed[d.key()] = d.Version
		}
	}
	eff.addImported(eff.imported)

	for _, d := range eff.rawDeps {
		eff.deps = append(eff.deps, eff.interpolateDep(d))
	}
	return eff
}

// overlay returns own followed by the inherited entries whose key own does
// not declare.
func overlay(own, inherited []pomDependency) []pomDependency {
	out := make([]pomDependency, 0, len(own)+len(inherited))
	seen := map[string]bool{}
	for _, d := range own {
		seen[d.key()] = true
		out = append(out, d)
	}
	for _, d := range inherited {
		if !seen[d.key()] {
			out = append(out, d)
		}
	}
	return out
}

// addImported records BOM-managed versions. Versions declared directly in
// the POM chain take precedence.
func (e *effectivePOM) addImported(versions map[string]string) {
	for k, v := range versions {
		if _, ok := e.imported[k]; !ok {
			e.imported[k] = v
		}
		if _, ok := e.managed[k]; !ok {
			e.managed[k] = v
		}
	}
}

var propertyRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolate substitutes ${name} references. Nested references are
// resolved by repeated passes; unknown names are left in place.
func (e *effectivePOM) interpolate(s string) string {
	for i := 0; i < 8 && strings.Contains(s, "${"); i++ {
		next := propertyRef.ReplaceAllStringFunc(s, func(ref string) string {
			name := ref[2 : len(ref)-1]
			if v, ok := e.props[name]; ok {
				return v
			}
			return ref
		})
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

func (e *effectivePOM) interpolateDep(d pomDependency) pomDependency {
	d.GroupID = e.interpolate(d.GroupID)
	d.ArtifactID = e.interpolate(d.ArtifactID)
	d.Version = e.interpolate(d.Version)
	d.Type = e.interpolate(d.Type)
	d.Classifier = e.interpolate(d.Classifier)
	d.Scope = e.interpolate(d.Scope)
	d.Optional = e.interpolate(d.Optional)
	return d
}

// versionFor returns the declared version of d, falling back to the managed
// version.
func (e *effectivePOM) versionFor(d pomDependency) string {
	if d.Version != "" {
		return d.Version
	}
	return e.managed[d.key()]
}

// importedBOMs returns the BOMs listed with scope "import" in dependencyManagement.
func importedBOMs(p *pom, eff *effectivePOM) []Coordinate {
	var boms []Coordinate
	for _, d := range p.Managed {
		d = eff.interpolateDep(d)
		if d.Scope == "import" && d.Type == "pom" && d.Version != "" {
			boms = append(boms, Coordinate{GroupID: d.GroupID, ArtifactID: d.ArtifactID, Packaging: "pom", Version: d.Version})
		}
	}
	return boms
}

// isVersionRange reports whether v is a Maven version range such as
// "[1.0,2.0)", which this resolver does not solve.
func isVersionRange(v string) bool {
	return strings.ContainsAny(v, "[](),")
}
