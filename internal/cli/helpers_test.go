package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/queue"
	"github.com/roach88/todosync/internal/realtime"
	"github.com/roach88/todosync/internal/store"
	"github.com/roach88/todosync/internal/testutil"
)

const testAPI = "https://api.example.com"

type cliEnv struct {
	opts    *RootOptions
	network *testutil.Network
	config  string
	dbPath  string
}

// newCLIEnv writes a config pointing at a temp database and routes every
// outbound request through a scripted network.
func newCLIEnv(t *testing.T, handler func(*http.Request) (*http.Response, error)) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "todosync.db")
	configPath := filepath.Join(dir, "todosync.yaml")

	cfg := `api:
  base_url: https://api.example.com
  token: tok
static:
  origin: http://localhost:5173
  manifest: [/, /index.html]
store:
  path: ` + dbPath + `
realtime:
  url: wss://api.example.com/ws/tasks
  max_attempts: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	network := testutil.NewNetwork(handler)
	return &cliEnv{
		opts: &RootOptions{
			Transport:   network,
			Clock:       testutil.NewFakeClock(time.Time{}),
			IDGenerator: queue.NewFixedGenerator("q-1", "q-2", "q-3", "q-4"),
		},
		network: network,
		config:  configPath,
		dbPath:  dbPath,
	}
}

// run executes the root command with args and returns stdout and the error.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(e.opts)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

// withQueue opens the database directly, hands a queue to fn, and closes it.
func (e *cliEnv) withQueue(t *testing.T, fn func(q *queue.Queue, st *store.Store)) {
	t.Helper()
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()
	q := queue.New(st.Actions(), http.DefaultClient, queue.WithIDGenerator(queue.NewFixedGenerator("seed-1", "seed-2", "seed-3")))
	fn(q, st)
}

type scriptedConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *scriptedConn) Receive() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *scriptedConn) Send([]byte) error { return nil }

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type scriptedDialer struct {
	frames [][]byte
	err    error
}

func (d *scriptedDialer) Dial(context.Context, string) (realtime.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	c := &scriptedConn{frames: make(chan []byte, len(d.frames)), closed: make(chan struct{})}
	for _, f := range d.frames {
		c.frames <- f
	}
	return c, nil
}
