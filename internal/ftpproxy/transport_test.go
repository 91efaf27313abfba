package ftpproxy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gonzalop/ftp"
)

func TestFTPSession_RejectsLineBreaks(t *testing.T) {
	// A zero session has no client; validation must fail before any I/O.
	s := &ftpSession{}
	ctx := context.Background()
	bad := "docs\r\nDELE a.txt"

	calls := map[string]func() error{
		"Cd":        func() error { _, err := s.Cd(ctx, bad); return err },
		"EnsureDir": func() error { return s.EnsureDir(ctx, "/archive\n2024") },
		"Rename from": func() error {
			_, err := s.Rename(ctx, bad, "/b.txt")
			return err
		},
		"Rename to": func() error {
			_, err := s.Rename(ctx, "/a.txt", "/b.txt\rDELE x")
			return err
		},
		"Send": func() error { _, err := s.Send(ctx, "NOOP\r\nDELE a.txt"); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestMLSDUnsupported(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&ftp.ProtocolError{Command: "MLSD", Code: 500}, true},
		{&ftp.ProtocolError{Command: "MLSD", Code: 502}, true},
		{fmt.Errorf("list: %w", &ftp.ProtocolError{Command: "MLSD", Code: 504}), true},
		{&ftp.ProtocolError{Command: "MLSD", Code: 550}, false},
		{&ftp.ProtocolError{Command: "MLSD", Code: 425}, false},
		{errors.New("connection reset"), false},
	}
	for _, c := range cases {
		if got := mlsdUnsupported(c.err); got != c.want {
			t.Errorf("mlsdUnsupported(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestParseListTime(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "unix with clock",
			raw:  "-rw-r--r-- 1 owner group 10 Mar 09 15:04 a.txt",
			want: time.Date(2024, time.March, 9, 15, 4, 0, 0, time.UTC),
		},
		{
			name: "unix clock in the future belongs to last year",
			raw:  "-rw-r--r-- 1 owner group 10 Dec 24 08:30 gift.txt",
			want: time.Date(2023, time.December, 24, 8, 30, 0, 0, time.UTC),
		},
		{
			name: "unix with year",
			raw:  "drwxr-xr-x 2 owner group 4096 Jan 02 2006 old",
			want: time.Date(2006, time.January, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "unix without group",
			raw:  "-rw-r--r-- 1 owner 10 Feb 29 2020 leap.txt",
			want: time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "name with spaces",
			raw:  "-rw-r--r-- 1 owner group 10 Mar 01 09:00 my file.txt",
			want: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "dos",
			raw:  "01-02-06  03:04PM       10 report.txt",
			want: time.Date(2006, time.January, 2, 15, 4, 0, 0, time.UTC),
		},
		{
			name: "dos with long year",
			raw:  "12-31-2023  11:59AM  <DIR>  archive",
			want: time.Date(2023, time.December, 31, 11, 59, 0, 0, time.UTC),
		},
		{name: "garbage", raw: "total 12"},
		{name: "empty", raw: ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := parseListTime(c.raw, now); !got.Equal(c.want) {
				t.Errorf("parseListTime(%q) = %v, want %v", c.raw, got, c.want)
			}
		})
	}
}
