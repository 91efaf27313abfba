package ftpproxy

import (
	"encoding/json"
	"time"
)

// NodeKind classifies a listing entry.
type NodeKind string

const (
	KindFile        NodeKind = "file"
	KindDirectory   NodeKind = "directory"
	KindUnsupported NodeKind = "unsupported"
)

// Node is one file or directory in a listing or tree. Files is only set on
// directories produced by a deep walk; flat listings leave it nil.
type Node struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Kind       NodeKind   `json:"kind"`
	Size       int64      `json:"size"`
	ModifiedAt *time.Time `json:"modifiedAt,omitempty"`
	Files      []Node     `json:"files,omitempty"`
}

// MarshalJSON keeps "files": [] on walked empty directories, which plain
// omitempty would drop.
func (n Node) MarshalJSON() ([]byte, error) {
	type plain Node
	if n.Kind == KindDirectory && n.Files != nil && len(n.Files) == 0 {
		return json.Marshal(struct {
			plain
			Files []Node `json:"files"`
		}{plain: plain(n), Files: n.Files})
	}
	return json.Marshal(plain(n))
}

// kindOf maps a transport entry type onto a NodeKind. Links and anything
// else a server may report are kept but never descended into.
func kindOf(entryType string) NodeKind {
	switch entryType {
	case "file":
		return KindFile
	case "dir":
		return KindDirectory
	default:
		return KindUnsupported
	}
}

// childPath joins a parent path and a name without doubling the root slash.
func childPath(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

func newNode(parent string, e Entry) Node {
	n := Node{
		Name: e.Name,
		Path: childPath(parent, e.Name),
		Kind: kindOf(e.Type),
		Size: e.Size,
	}
	if !e.ModTime.IsZero() {
		t := e.ModTime.UTC()
		n.ModifiedAt = &t
	}
	return n
}

// CountNodes returns the number of nodes in a tree, directories included.
func CountNodes(tree []Node) int {
	count := 0
	stack := [][]Node{tree}
	for len(stack) > 0 {
		level := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count += len(level)
		for i := range level {
			if len(level[i].Files) > 0 {
				stack = append(stack, level[i].Files)
			}
		}
	}
	return count
}
