package ftpproxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gonzalop/ftp"
)

// Entry is one raw item from a remote directory listing.
type Entry struct {
	Name    string
	Type    string // "file", "dir", "link", or whatever MLSD reports
	Size    int64
	ModTime time.Time // zero when the server reports none
}

// Session is an authenticated handle to the remote store. Implementations
// need not be safe for concurrent use; the Manager serialises calls per key.
type Session interface {
	List(ctx context.Context) ([]Entry, error)
	Pwd(ctx context.Context) (string, error)
	Cd(ctx context.Context, path string) (string, error)
	EnsureDir(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) (string, error)
	Send(ctx context.Context, command string) (string, error)
	Noop(ctx context.Context) error
	Close() error
}

// Profile is the endpoint and credentials used to open a Session.
type Profile struct {
	Name     string
	Host     string
	Port     int
	User     string
	Password string
	TLS      bool
	Timeout  time.Duration
}

// Addr returns host:port for the profile.
func (p Profile) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Dialer opens sessions against a profile.
type Dialer interface {
	Dial(ctx context.Context, p Profile) (Session, error)
}

// defaultTimeout applies when a profile carries no timeout of its own.
const defaultTimeout = 30 * time.Second

// FTPDialer opens sessions with github.com/gonzalop/ftp.
type FTPDialer struct{}

// Dial connects and logs in. The ftp client has no context support, so the
// dial runs in its own goroutine and is abandoned (and later closed) if ctx
// ends first.
func (FTPDialer) Dial(ctx context.Context, p Profile) (Session, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []ftp.Option{ftp.WithTimeout(timeout)}
	if p.TLS {
		opts = append(opts, ftp.WithExplicitTLS(&tls.Config{ServerName: p.Host}))
	}

	type dialResult struct {
		client *ftp.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		c, err := ftp.Dial(p.Addr(), opts...)
		if err != nil {
			done <- dialResult{err: fmt.Errorf("dial %s: %w", p.Addr(), err)}
			return
		}
		if err := c.Login(p.User, p.Password); err != nil {
			_ = c.Quit()
			done <- dialResult{err: fmt.Errorf("login to %s as %s: %w", p.Addr(), p.User, err)}
			return
		}
		done <- dialResult{client: c}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &ftpSession{client: r.client}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.client != nil {
				_ = r.client.Quit()
			}
		}()
		return nil, fmt.Errorf("dial %s: %w", p.Addr(), ctx.Err())
	}
}

// ftpSession adapts *ftp.Client to Session. Per-command deadlines come from
// the client's WithTimeout option; ctx is checked before each round trip.
type ftpSession struct {
	client *ftp.Client
	noMLSD bool
}

func (s *ftpSession) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.noMLSD && s.client.HasFeature("MLST") {
		ml, err := s.client.MLList("")
		if err == nil {
			entries := make([]Entry, 0, len(ml))
			for _, e := range ml {
				if e.Type == "cdir" || e.Type == "pdir" {
					continue
				}
				entries = append(entries, Entry{Name: e.Name, Type: e.Type, Size: e.Size, ModTime: e.ModTime})
			}
			return entries, nil
		}
		if !mlsdUnsupported(err) {
			return nil, err
		}
		// Server advertises MLST but has no MLSD; stick to LIST from now on.
		s.noMLSD = true
	}

	list, err := s.client.List("")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	entries := make([]Entry, 0, len(list))
	for _, e := range list {
		entries = append(entries, Entry{
			Name:    e.Name,
			Type:    e.Type,
			Size:    e.Size,
			ModTime: parseListTime(e.Raw, now),
		})
	}
	return entries, nil
}

// mlsdUnsupported reports whether err means the server does not implement
// MLSD at all. Other failures, such as 550 on one unreadable directory, say
// nothing about the command and must not downgrade the session.
func mlsdUnsupported(err error) bool {
	var perr *ftp.ProtocolError
	if !errors.As(err, &perr) {
		return false
	}
	switch perr.Code {
	case 500, 502, 504:
		return true
	}
	return false
}

// parseListTime extracts the modification time from a raw LIST line in Unix
// ("-rw-r--r-- 1 owner group 10 Jan 02 15:04 name" or "... Jan 02 2006 name")
// or DOS ("01-02-06  03:04PM  10 name") form. LIST carries no zone, so the
// time is taken as UTC. A Unix time without a year belongs to the last twelve
// months relative to now. Unparseable lines give the zero time.
func parseListTime(raw string, now time.Time) time.Time {
	fields := strings.Fields(raw)
	if len(fields) >= 3 {
		if t, err := time.Parse("01-02-06 03:04PM", fields[0]+" "+fields[1]); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse("01-02-2006 03:04PM", fields[0]+" "+fields[1]); err == nil {
			return t.UTC()
		}
	}

	// Month, day and time-or-year are followed by at least the name.
	for i := 1; i+3 < len(fields); i++ {
		mon, err := time.Parse("Jan", fields[i])
		if err != nil {
			continue
		}
		day, err := strconv.Atoi(fields[i+1])
		if err != nil || day < 1 || day > 31 {
			continue
		}
		last := fields[i+2]
		if clock, err := time.Parse("15:04", last); err == nil {
			t := time.Date(now.Year(), mon.Month(), day, clock.Hour(), clock.Minute(), 0, 0, time.UTC)
			if t.After(now.Add(24 * time.Hour)) {
				t = t.AddDate(-1, 0, 0)
			}
			return t
		}
		if len(last) == 4 {
			if year, err := strconv.Atoi(last); err == nil {
				return time.Date(year, mon.Month(), day, 0, 0, 0, 0, time.UTC)
			}
		}
	}
	return time.Time{}
}

func (s *ftpSession) Pwd(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.client.CurrentDir()
}

func (s *ftpSession) Cd(ctx context.Context, path string) (string, error) {
	if err := checkLine("directory", path); err != nil {
		return "", err
	}
	return s.expect2xx(ctx, "CWD", path)
}

// EnsureDir walks path segment by segment, creating what is missing, then
// returns to the directory it started from.
func (s *ftpSession) EnsureDir(ctx context.Context, path string) error {
	if err := checkLine("directory", path); err != nil {
		return err
	}
	orig, err := s.Pwd(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.client.ChangeDir(orig) }()

	if strings.HasPrefix(path, "/") {
		if err := s.client.ChangeDir("/"); err != nil {
			return err
		}
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.client.ChangeDir(seg); err == nil {
			continue
		}
		if err := s.client.MakeDir(seg); err != nil {
			return fmt.Errorf("make directory %q: %w", seg, err)
		}
		if err := s.client.ChangeDir(seg); err != nil {
			return err
		}
	}
	return nil
}

// Rename issues RNFR/RNTO directly so the final server reply can be returned.
func (s *ftpSession) Rename(ctx context.Context, from, to string) (string, error) {
	if err := checkLine("source", from); err != nil {
		return "", err
	}
	if err := checkLine("destination", to); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.client.Quote("RNFR", from)
	if err != nil {
		return "", err
	}
	if resp.Code != 350 {
		return "", &ftp.ProtocolError{Command: "RNFR", Response: resp.Message, Code: resp.Code}
	}
	return s.expect2xx(ctx, "RNTO", to)
}

// Send passes command to the server untouched. Any reply, including 4xx and
// 5xx, is returned as the response; only transport failures are errors.
func (s *ftpSession) Send(ctx context.Context, command string) (string, error) {
	if err := checkLine("command", command); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.client.Quote(command)
	if err != nil {
		return "", err
	}
	return resp.String(), nil
}

func (s *ftpSession) Noop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Noop()
}

func (s *ftpSession) Close() error {
	return s.client.Quit()
}

func (s *ftpSession) expect2xx(ctx context.Context, command, arg string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.client.Quote(command, arg)
	if err != nil {
		return "", err
	}
	if !resp.Is2xx() {
		return "", &ftp.ProtocolError{Command: command, Response: resp.Message, Code: resp.Code}
	}
	return resp.String(), nil
}
