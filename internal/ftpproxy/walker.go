package ftpproxy

import (
	"context"
	"fmt"
	"time"
)

// Tree is the root-level node sequence of a full walk. Every directory in a
// Tree returned by this package has been fully expanded.
type Tree []Node

// restoreTimeout bounds the cd back to the starting directory after a walk,
// which runs even when the walk's own context has expired.
const restoreTimeout = 10 * time.Second

// WalkSession walks the whole tree below key's working directory using the
// already-open session. The session stays registered and its working
// directory is restored afterwards.
func (m *Manager) WalkSession(ctx context.Context, key string) (Tree, error) {
	var tree Tree
	err := m.withSession(ctx, OpTree, key, func(ctx context.Context, s Session) error {
		var err error
		tree, err = walk(ctx, s, m.maxDepth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// FetchTree walks key's session and then disconnects key, whatever the
// outcome. After FetchTree returns the key holds no session.
func (m *Manager) FetchTree(ctx context.Context, key string) (Tree, error) {
	defer m.Disconnect(key)
	return m.WalkSession(ctx, key)
}

// walkFrame is one directory waiting to be listed.
type walkFrame struct {
	node  *Node
	depth int
}

// walk expands the tree iteratively. Child slices are allocated once per
// directory and never appended to afterwards, so the *Node pointers kept on
// the stack stay valid while the stack drains.
func walk(ctx context.Context, s Session, maxDepth int) (tree Tree, err error) {
	root, err := s.Pwd(ctx)
	if err != nil {
		return nil, fmt.Errorf("pwd: %w", err)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		if _, cdErr := s.Cd(rctx, root); cdErr != nil && err == nil {
			tree, err = nil, fmt.Errorf("restore %s: %w", root, cdErr)
		}
	}()

	entries, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	tree = buildLevel(root, entries)

	visited := map[string]struct{}{root: {}}
	var stack []walkFrame
	stack = pushDirs(stack, tree, 1)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > maxDepth {
			return nil, fmt.Errorf("%w: %s is deeper than %d levels", ErrWalkLimit, f.node.Path, maxDepth)
		}
		if _, seen := visited[f.node.Path]; seen {
			return nil, fmt.Errorf("%w: %s listed twice", ErrWalkLimit, f.node.Path)
		}
		visited[f.node.Path] = struct{}{}

		if _, err := s.Cd(ctx, f.node.Path); err != nil {
			return nil, fmt.Errorf("cd %s: %w", f.node.Path, err)
		}
		entries, err := s.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", f.node.Path, err)
		}
		f.node.Files = buildLevel(f.node.Path, entries)
		stack = pushDirs(stack, f.node.Files, f.depth+1)
	}
	return tree, nil
}

// buildLevel converts one listing into nodes in listing order. Directories
// get a non-nil empty Files slice so an empty folder still reports "files".
func buildLevel(parent string, entries []Entry) []Node {
	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		if skipEntry(e.Name) {
			continue
		}
		n := newNode(parent, e)
		if n.Kind == KindDirectory {
			n.Files = []Node{}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// pushDirs pushes level's directories in reverse so they pop in listing order.
func pushDirs(stack []walkFrame, level []Node, depth int) []walkFrame {
	for i := len(level) - 1; i >= 0; i-- {
		if level[i].Kind == KindDirectory {
			stack = append(stack, walkFrame{node: &level[i], depth: depth})
		}
	}
	return stack
}

func skipEntry(name string) bool {
	return name == "" || name == "." || name == ".."
}
