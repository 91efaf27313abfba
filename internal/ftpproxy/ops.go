package ftpproxy

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// MoveResult is the outcome of Mov.
type MoveResult struct {
	Path     string `json:"path"`
	Response string `json:"response"`
}

// CommandResult is the outcome of Cmd.
type CommandResult struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

// ChangeDirResult is the outcome of Cd.
type ChangeDirResult struct {
	Path     string `json:"path"`
	Response string `json:"response"`
}

// Ls lists key's working directory without descending. Folders come first,
// then files, then unsupported entries; each group keeps the server's order.
func (m *Manager) Ls(ctx context.Context, key string) ([]Node, error) {
	var out []Node
	err := m.withSession(ctx, OpLs, key, func(ctx context.Context, s Session) error {
		cwd, err := s.Pwd(ctx)
		if err != nil {
			return fmt.Errorf("pwd: %w", err)
		}
		entries, err := s.List(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", cwd, err)
		}

		var dirs, files, other []Node
		for _, e := range entries {
			if skipEntry(e.Name) {
				continue
			}
			n := newNode(cwd, e)
			switch n.Kind {
			case KindDirectory:
				dirs = append(dirs, n)
			case KindFile:
				files = append(files, n)
			default:
				other = append(other, n)
			}
		}
		out = make([]Node, 0, len(dirs)+len(files)+len(other))
		out = append(out, dirs...)
		out = append(out, files...)
		out = append(out, other...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Mov makes sure directory to exists, creating missing segments, then
// renames from to to/file. Relative destinations resolve against the
// working directory.
func (m *Manager) Mov(ctx context.Context, key, from, to, file string) (MoveResult, error) {
	var res MoveResult
	err := m.withSession(ctx, OpMov, key, func(ctx context.Context, s Session) error {
		if from == "" || file == "" || strings.Contains(file, "/") {
			return fmt.Errorf("source and a plain destination file name are required: %w", ErrInvalidArgument)
		}
		for _, arg := range [][2]string{{"source", from}, {"destination", to}, {"file name", file}} {
			if err := checkLine(arg[0], arg[1]); err != nil {
				return err
			}
		}
		dir := to
		if !strings.HasPrefix(dir, "/") {
			cwd, err := s.Pwd(ctx)
			if err != nil {
				return fmt.Errorf("pwd: %w", err)
			}
			dir = path.Join(cwd, dir)
		}
		dir = path.Clean(dir)

		if err := s.EnsureDir(ctx, dir); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
		dest := path.Join(dir, file)
		resp, err := s.Rename(ctx, from, dest)
		if err != nil {
			return fmt.Errorf("rename %s to %s: %w", from, dest, err)
		}
		res = MoveResult{Path: dest, Response: resp}
		return nil
	})
	return res, err
}

// Cmd sends command as-is. Server replies, including 4xx and 5xx, come back
// in Response; only transport failures are errors.
func (m *Manager) Cmd(ctx context.Context, key, command string) (CommandResult, error) {
	var res CommandResult
	err := m.withSession(ctx, OpCmd, key, func(ctx context.Context, s Session) error {
		if strings.TrimSpace(command) == "" {
			return fmt.Errorf("empty command: %w", ErrInvalidArgument)
		}
		if err := checkLine("command", command); err != nil {
			return err
		}
		resp, err := s.Send(ctx, command)
		if err != nil {
			return err
		}
		res = CommandResult{Command: command, Response: resp}
		return nil
	})
	return res, err
}

// Cd changes key's working directory and reports the new absolute path.
func (m *Manager) Cd(ctx context.Context, key, dir string) (ChangeDirResult, error) {
	var res ChangeDirResult
	err := m.withSession(ctx, OpCd, key, func(ctx context.Context, s Session) error {
		if err := checkLine("directory", dir); err != nil {
			return err
		}
		resp, err := s.Cd(ctx, dir)
		if err != nil {
			return fmt.Errorf("cd %s: %w", dir, err)
		}
		cwd, err := s.Pwd(ctx)
		if err != nil {
			return fmt.Errorf("pwd: %w", err)
		}
		res = ChangeDirResult{Path: cwd, Response: resp}
		return nil
	})
	return res, err
}

// Pwd returns key's absolute working directory.
func (m *Manager) Pwd(ctx context.Context, key string) (string, error) {
	var cwd string
	err := m.withSession(ctx, OpPwd, key, func(ctx context.Context, s Session) error {
		var err error
		cwd, err = s.Pwd(ctx)
		return err
	})
	return cwd, err
}
