package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func TestReadErrorMarksConnectionFailuresTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "bad conn", err: driver.ErrBadConn, transient: true},
		{name: "wrapped bad conn", err: fmt.Errorf("query: %w", driver.ErrBadConn), transient: true},
		{name: "connection dropped", err: io.ErrUnexpectedEOF, transient: true},
		{name: "dial refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, transient: true},
		{name: "closed pool", err: sql.ErrConnDone},
		{name: "bad query", err: errors.New(`relation "team_members" does not exist`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := readError("list members", tt.err)
			if got := contractx.IsTransient(err); got != tt.transient {
				t.Fatalf("IsTransient(readError(%v)) = %v, want %v", tt.err, got, tt.transient)
			}
			if !tt.transient && !errors.Is(err, tt.err) {
				t.Fatalf("readError() = %v, lost the cause", err)
			}
		})
	}
}
