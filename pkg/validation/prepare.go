package validation

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultReadinessRoute is the readiness route injected into specs that do
// not already use it.
const DefaultReadinessRoute = "/readiness"

// derivedSuffix is inserted before the extension of the augmented spec.
const derivedSuffix = ".respvalidator"

// PreparedSpec is the result of injecting the readiness route into a spec.
type PreparedSpec struct {
	// SourcePath is the caller-supplied spec. It is never modified.
	SourcePath string
	// Path is the derived file holding the augmented spec.
	Path string
	// ReadinessRoute is the key added under paths.
	ReadinessRoute string
	// ReadinessPath is the HTTP path that serves the readiness route,
	// including the first server's base path.
	ReadinessPath string
}

// Cleanup removes the derived spec file.
func (p *PreparedSpec) Cleanup() error {
	if p == nil || p.Path == "" || p.Path == p.SourcePath {
		return nil
	}
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// PrepareSpec reads the spec at path, adds a GET readiness route that
// answers 202, and writes the result next to the original.
func PrepareSpec(path string) (*PreparedSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ConfigurationError{Option: "spec"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec %s: %w", path, err)
	}

	out, route, readinessPath, err := AugmentSpec(data)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare spec %s: %w", path, err)
	}

	derived, err := writeDerived(path, out)
	if err != nil {
		return nil, err
	}

	return &PreparedSpec{
		SourcePath:     path,
		Path:           derived,
		ReadinessRoute: route,
		ReadinessPath:  readinessPath,
	}, nil
}

// AugmentSpec returns a copy of the YAML or JSON spec with the readiness
// route added, along with the route key and the HTTP path serving it.
func AugmentSpec(data []byte) ([]byte, string, string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, "", "", fmt.Errorf("failed to parse spec: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, "", "", errors.New("spec is not a mapping document")
	}
	doc := root.Content[0]

	paths := mappingValue(doc, "paths")
	if paths == nil {
		paths = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc.Content = append(doc.Content, scalarNode("paths"), paths)
	}
	if paths.Kind != yaml.MappingNode {
		return nil, "", "", errors.New("spec paths is not a mapping")
	}

	route := uniqueRoute(paths)

	var op yaml.Node
	if err := op.Encode(map[string]any{
		"get": map[string]any{
			"summary": "Validation service readiness",
			"responses": map[string]any{
				strconv.Itoa(http.StatusAccepted): map[string]any{
					"description": "Spec compiled",
				},
			},
		},
	}); err != nil {
		return nil, "", "", fmt.Errorf("failed to build readiness route: %w", err)
	}
	paths.Content = append(paths.Content, scalarNode(route), &op)

	out, err := yaml.Marshal(&root)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to encode spec: %w", err)
	}
	return out, route, firstServerBase(doc) + route, nil
}

// uniqueRoute returns DefaultReadinessRoute, suffixed until it does not
// collide with an existing path key.
func uniqueRoute(paths *yaml.Node) string {
	existing := make(map[string]bool)
	for i := 0; i+1 < len(paths.Content); i += 2 {
		existing[paths.Content[i].Value] = true
	}
	route := DefaultReadinessRoute
	for n := 1; existing[route]; n++ {
		route = DefaultReadinessRoute + "-" + strconv.Itoa(n)
	}
	return route
}

// firstServerBase returns the base path of the first entry in servers.
func firstServerBase(doc *yaml.Node) string {
	servers := mappingValue(doc, "servers")
	if servers == nil || servers.Kind != yaml.SequenceNode || len(servers.Content) == 0 {
		return ""
	}
	first := servers.Content[0]
	if first.Kind != yaml.MappingNode {
		return ""
	}
	urlNode := mappingValue(first, "url")
	if urlNode == nil {
		return ""
	}
	defaults := make(map[string]string)
	if vars := mappingValue(first, "variables"); vars != nil && vars.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(vars.Content); i += 2 {
			if def := mappingValue(vars.Content[i+1], "default"); def != nil {
				defaults[vars.Content[i].Value] = def.Value
			}
		}
	}
	return ServerBasePath(urlNode.Value, defaults)
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// writeDerived writes the augmented spec beside the source so relative
// $refs still resolve, falling back to the temp dir.
func writeDerived(source string, data []byte) (string, error) {
	dir := filepath.Dir(source)
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	derived := filepath.Join(dir, base+derivedSuffix+".yaml")

	if err := os.WriteFile(derived, data, 0o600); err == nil {
		return derived, nil
	}

	f, err := os.CreateTemp("", base+derivedSuffix+"-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create derived spec: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(data); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write derived spec: %w", err)
	}
	return f.Name(), nil
}
