package authtree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cedarauth/cedar/pkg/observability"
)

// NodeFactory builds a node instance from its YAML config block.
// Factories close over their injected collaborators.
type NodeFactory func(config map[string]interface{}) (Node, error)

// Registry maps node type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]NodeFactory
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]NodeFactory)}
}

// Register adds a factory for a node type, replacing any previous one.
func (r *Registry) Register(nodeType string, factory NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[nodeType] = factory
}

// Build instantiates a node of the given type.
func (r *Registry) Build(nodeType string, config map[string]interface{}) (Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
	return factory(config)
}

// treeDefinition is the YAML shape of one tree file.
type treeDefinition struct {
	Name  string                    `yaml:"name"`
	Entry string                    `yaml:"entry"`
	Nodes map[string]nodeDefinition `yaml:"nodes"`
}

type nodeDefinition struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
	Next   map[string]string      `yaml:"next"`
}

// ParseTree builds a validated Tree from a YAML definition.
func ParseTree(raw []byte, reg *Registry, logger *observability.Logger, metrics *observability.Metrics) (*Tree, error) {
	var def treeDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse tree definition: %w", err)
	}
	if def.Name == "" {
		return nil, &ConfigError{Reason: "tree name is required"}
	}
	if def.Entry == "" {
		return nil, &ConfigError{Tree: def.Name, Reason: "entry node is required"}
	}

	nodes := make(map[string]*TreeNode, len(def.Nodes))
	for id, nd := range def.Nodes {
		node, err := reg.Build(nd.Type, nd.Config)
		if err != nil {
			return nil, &ConfigError{Tree: def.Name, NodeID: id, Reason: err.Error()}
		}
		next := nd.Next
		if next == nil {
			next = map[string]string{}
		}
		nodes[id] = &TreeNode{ID: id, Type: nd.Type, Node: node, Next: next}
	}
	return NewTree(def.Name, def.Entry, nodes, logger, metrics)
}

// LoadDirectory parses every .yaml/.yml file in dir into a tree, keyed by
// tree name.
func LoadDirectory(dir string, reg *Registry, logger *observability.Logger, metrics *observability.Metrics) (map[string]*Tree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tree directory: %w", err)
	}

	trees := make(map[string]*Tree)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read tree file %s: %w", entry.Name(), err)
		}
		tree, err := ParseTree(raw, reg, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("tree file %s: %w", entry.Name(), err)
		}
		if _, dup := trees[tree.Name]; dup {
			return nil, &ConfigError{Tree: tree.Name, Reason: "duplicate tree name"}
		}
		trees[tree.Name] = tree
	}
	return trees, nil
}

// TreeSet is the live, concurrently readable set of loaded trees, swapped
// wholesale on reload.
type TreeSet struct {
	mu    sync.RWMutex
	trees map[string]*Tree
}

// NewTreeSet creates a TreeSet holding the given trees.
func NewTreeSet(trees map[string]*Tree) *TreeSet {
	if trees == nil {
		trees = map[string]*Tree{}
	}
	return &TreeSet{trees: trees}
}

// Get returns a tree by name.
func (s *TreeSet) Get(name string) (*Tree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[name]
	return t, ok
}

// Names lists the loaded tree names.
func (s *TreeSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.trees))
	for name := range s.trees {
		names = append(names, name)
	}
	return names
}

// Replace swaps in a freshly loaded tree map.
func (s *TreeSet) Replace(trees map[string]*Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees = trees
}
