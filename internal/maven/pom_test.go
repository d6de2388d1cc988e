package maven

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parentPOM = `<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <groupId>org.example</groupId>
  <artifactId>parent</artifactId>
  <version>3.0</version>
  <packaging>pom</packaging>
  <properties>
    <slf4j.version>2.0.9</slf4j.version>
  </properties>
  <dependencyManagement>
    <dependencies>
      <dependency>
        <groupId>org.slf4j</groupId>
        <artifactId>slf4j-api</artifactId>
        <version>${slf4j.version}</version>
      </dependency>
    </dependencies>
  </dependencyManagement>
  <dependencies>
    <dependency>
      <groupId>org.example</groupId>
      <artifactId>annotations</artifactId>
      <version>1.0</version>
    </dependency>
  </dependencies>
</project>`

const childPOM = `<project>
  <parent>
    <groupId>org.example</groupId>
    <artifactId>parent</artifactId>
    <version>3.0</version>
  </parent>
  <artifactId>core</artifactId>
  <properties>
    <guava.version>32.1.3-jre</guava.version>
  </properties>
  <dependencies>
    <dependency>
      <groupId>com.google.guava</groupId>
      <artifactId>guava</artifactId>
      <version>${guava.version}</version>
    </dependency>
    <dependency>
      <groupId>org.slf4j</groupId>
      <artifactId>slf4j-api</artifactId>
    </dependency>
    <dependency>
      <groupId>${project.groupId}</groupId>
      <artifactId>core-model</artifactId>
      <version>${project.version}</version>
    </dependency>
    <dependency>
      <groupId>junit</groupId>
      <artifactId>junit</artifactId>
      <version>4.13.2</version>
      <scope>test</scope>
    </dependency>
  </dependencies>
</project>`

// TestParsePOM verifies decoding of a namespaced POM including free-form properties.
func TestParsePOM(t *testing.T) {
	p, err := parsePOM([]byte(parentPOM))
	require.NoError(t, err)

	assert.Equal(t, "org.example", p.GroupID)
	assert.Equal(t, "pom", p.Packaging)
	assert.Equal(t, "2.0.9", p.Properties["slf4j.version"])
	require.Len(t, p.Managed, 1)
	require.Len(t, p.Deps, 1)

	_, err = parsePOM([]byte("<project><oops></project>"))
	assert.Error(t, err)
}

// TestMerge verifies parent inheritance, property interpolation and
// managed versions.
func TestMerge(t *testing.T) {
	parent, err := parsePOM([]byte(parentPOM))
	require.NoError(t, err)
	child, err := parsePOM([]byte(childPOM))
	require.NoError(t, err)

	parentEff := merge(nil, parent)
	eff := merge(parentEff, child)

	// Coordinates are inherited from the parent.
	assert.Equal(t, "org.example", eff.groupID)
	assert.Equal(t, "3.0", eff.version)
	assert.Equal(t, "jar", eff.packaging)

	// Child dependencies come first, then inherited ones.
	require.Len(t, eff.deps, 5)
	assert.Equal(t, "32.1.3-jre", eff.deps[0].Version)
	assert.Equal(t, "org.example", eff.deps[2].GroupID)
	assert.Equal(t, "3.0", eff.deps[2].Version)
	assert.Equal(t, "org.example:annotations", eff.deps[4].key())

	// Managed version from the parent fills in the missing one.
	assert.Equal(t, "2.0.9", eff.versionFor(eff.deps[1]))

	// Test scope is not a runtime dependency.
	assert.False(t, eff.deps[3].isRuntime())
	assert.True(t, eff.deps[0].isRuntime())
}

// TestMerge_ChildOverridesInheritedProperties verifies that a grandchild
// property override reaches managed versions declared two levels up.
func TestMerge_ChildOverridesInheritedProperties(t *testing.T) {
	root := &pom{
		GroupID: "g", ArtifactID: "root", Version: "1",
		Properties: pomProperties{"v": "1.0"},
		Managed:    []pomDependency{{GroupID: "g", ArtifactID: "lib", Version: "${v}"}},
		Deps:       []pomDependency{{GroupID: "g", ArtifactID: "core", Version: "${project.version}"}},
	}
	mid := &pom{ArtifactID: "mid"}
	leaf := &pom{ArtifactID: "leaf", Version: "3", Properties: pomProperties{"v": "3.0"}}

	rootEff := merge(nil, root)
	eff := merge(merge(rootEff, mid), leaf)

	assert.Equal(t, "3.0", eff.managed["g:lib"])
	require.Len(t, eff.deps, 1)
	assert.Equal(t, "3", eff.deps[0].Version)

	// The parent's own view is unchanged.
	assert.Equal(t, "1.0", rootEff.managed["g:lib"])
	assert.Equal(t, "1", rootEff.deps[0].Version)
}

// TestInterpolate verifies nested and unknown property references.
func TestInterpolate(t *testing.T) {
	eff := &effectivePOM{props: map[string]string{
		"a":     "${b}",
		"b":     "value",
		"loop1": "${loop2}",
		"loop2": "${loop1}",
	}}

	assert.Equal(t, "value", eff.interpolate("${a}"))
	assert.Equal(t, "x-value-y", eff.interpolate("x-${b}-y"))
	assert.Equal(t, "${missing}", eff.interpolate("${missing}"))
	// Cycles terminate after a bounded number of passes.
	assert.Contains(t, eff.interpolate("${loop1}"), "${loop")
}

// TestPOMDependency_isRuntime covers scopes and the optional flag.
func TestPOMDependency_isRuntime(t *testing.T) {
	tests := []struct {
		dep  pomDependency
		want bool
	}{
		{pomDependency{}, true},
		{pomDependency{Scope: "compile"}, true},
		{pomDependency{Scope: "runtime"}, true},
		{pomDependency{Scope: "provided"}, false},
		{pomDependency{Scope: "test"}, false},
		{pomDependency{Scope: "system"}, false},
		{pomDependency{Optional: "true"}, false},
		{pomDependency{Optional: " TRUE "}, false},
		{pomDependency{Optional: "false"}, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.dep.isRuntime(), "%+v", tt.dep)
	}
}

// TestIsVersionRange covers range syntax detection.
func TestIsVersionRange(t *testing.T) {
	assert.True(t, isVersionRange("[1.0,2.0)"))
	assert.True(t, isVersionRange("[1.5]"))
	assert.False(t, isVersionRange("1.0.0"))
	assert.False(t, isVersionRange("32.1.3-jre"))
}
