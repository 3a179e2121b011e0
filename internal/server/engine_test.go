package server

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eternalApril/moonstone/internal/config"
	"github.com/eternalApril/moonstone/internal/metrics"
	"github.com/eternalApril/moonstone/internal/persistence"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

// do runs a command as an internal caller
func do(t *testing.T, e *Engine, name string, args ...string) resp.Value {
	t.Helper()
	return e.Execute(nil, makeCommand(name, args...))
}

// bulks flattens an array of bulk strings, nil entries become ""
func bulks(v resp.Value) []string {
	out := make([]string, len(v.Array))
	for i, x := range v.Array {
		out[i] = string(x.String)
	}
	return out
}

func TestRegistryIsComplete(t *testing.T) {
	e := setupEngine()

	for name := range commandRegistry {
		_, ok := e.commands[name]
		assert.True(t, ok, "no handler for %s", name)
		_, ok = commandDocsRegistry[name]
		assert.True(t, ok, "no docs for %s", name)
	}
	assert.Len(t, e.commands, len(commandRegistry))
}

func TestExecuteDispatch(t *testing.T) {
	e := setupEngine()

	tests := []struct {
		name string
		cmd  []string
		want string
	}{
		{"unknown command", []string{"NOPE"}, "ERR unknown command 'NOPE'"},
		{"lowercase name", []string{"ping"}, "PONG"},
		{"exact arity too many", []string{"GET", "a", "b"}, "ERR wrong number of arguments for 'get' command"},
		{"exact arity too few", []string{"GET"}, "ERR wrong number of arguments for 'get' command"},
		{"minimum arity", []string{"SET", "k"}, "ERR wrong number of arguments for 'set' command"},
		{"dotted name", []string{"json.get", "missing"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, e, tt.cmd[0], tt.cmd[1:]...)
			assert.Equal(t, tt.want, string(res.String))
		})
	}

	assert.True(t, e.Execute(nil, nil).IsError())
}

func TestAuthGate(t *testing.T) {
	ks, err := storage.NewKeyspace(4)
	require.NoError(t, err)
	e := NewEngine(EngineConfig{Keyspace: ks, RequireAuth: "s3cret"}, zap.NewNop())

	s := &Session{}
	res := e.Execute(s, makeCommand("GET", "k"))
	assert.Equal(t, "NOAUTH Authentication required.", string(res.String))

	res = e.Execute(s, makeCommand("AUTH", "wrong"))
	assert.True(t, strings.HasPrefix(string(res.String), "WRONGPASS"))
	assert.False(t, s.Authenticated())

	res = e.Execute(s, makeCommand("AUTH", "default", "s3cret"))
	assert.Equal(t, "OK", string(res.String))
	assert.True(t, s.Authenticated())

	res = e.Execute(s, makeCommand("GET", "k"))
	assert.True(t, res.IsNull)

	// internal callers are trusted
	assert.Equal(t, "PONG", string(e.Execute(nil, makeCommand("PING")).String))

	// QUIT is allowed before AUTH
	other := &Session{}
	res = e.Execute(other, makeCommand("QUIT"))
	assert.Equal(t, "OK", string(res.String))
	assert.True(t, other.Closing())
}

func TestAuthWithoutPassword(t *testing.T) {
	e := setupEngine()
	res := do(t, e, "AUTH", "x")
	assert.True(t, res.IsError())
	assert.Contains(t, string(res.String), "without any password configured")
}

func newCountingEngine(t *testing.T) (*Engine, *persistence.Scheduler, *persistence.Snapshotter) {
	t.Helper()
	ks, err := storage.NewKeyspace(4)
	require.NoError(t, err)
	log := zap.NewNop()
	snap := persistence.NewSnapshotter(t.TempDir(), "dump.mss", log)
	sched := persistence.NewScheduler(snap, ks, persistence.SchedulerConfig{Interval: time.Hour, Mutations: 1000}, log, nil)
	return NewEngine(EngineConfig{Keyspace: ks, Scheduler: sched}, log), sched, snap
}

func TestMutationCounting(t *testing.T) {
	e, sched, snap := newCountingEngine(t)

	do(t, e, "SET", "a", "1")
	do(t, e, "SET", "b", "2")
	do(t, e, "GET", "a")                 // read
	do(t, e, "INCR", "b")                // write
	do(t, e, "LPUSH", "a", "x")          // WRONGTYPE, not counted
	do(t, e, "SET", "a", "1", "BADFLAG") // syntax error, not counted
	do(t, e, "EXPIRE", "missing", "10")  // nothing to expire
	do(t, e, "MSET", "c", "1", "d", "2") // one change per key

	assert.EqualValues(t, 5, sched.Pending())

	// SAVE blocks the calling connection until the snapshot is on disk
	require.Equal(t, "OK", string(do(t, e, "SAVE").String))
	assert.EqualValues(t, 0, sched.Pending())
	assert.FileExists(t, snap.Path())
	assert.Equal(t, sched.LastSave().Unix(), do(t, e, "LASTSAVE").Integer)
}

func TestWritesCountOnlyChanges(t *testing.T) {
	tests := []struct {
		name  string
		setup [][]string
		cmd   []string
		want  int64
	}{
		{"SET NX on existing key", [][]string{{"SET", "k", "v"}}, []string{"SET", "k", "w", "NX"}, 0},
		{"SET XX on missing key", nil, []string{"SET", "k", "v", "XX"}, 0},
		{"DEL missing keys", nil, []string{"DEL", "x", "y"}, 0},
		{"DEL counts removed keys", [][]string{{"SET", "x", "1"}, {"SET", "y", "1"}}, []string{"DEL", "x", "y", "z"}, 2},
		{"GEOADD XX on missing key", nil, []string{"GEOADD", "g", "XX", "13.361389", "38.115556", "Palermo"}, 0},
		{"GEOADD same position", [][]string{{"GEOADD", "g", "13.361389", "38.115556", "Palermo"}}, []string{"GEOADD", "g", "13.361389", "38.115556", "Palermo"}, 0},
		{"GEOADD moves a member", [][]string{{"GEOADD", "g", "13.361389", "38.115556", "Palermo"}}, []string{"GEOADD", "g", "15.087269", "37.502669", "Palermo"}, 1},
		{"ZADD unchanged score", [][]string{{"ZADD", "z", "1", "m"}}, []string{"ZADD", "z", "1", "m"}, 0},
		{"ZADD NX on existing member", [][]string{{"ZADD", "z", "1", "m"}}, []string{"ZADD", "z", "NX", "2", "m"}, 0},
		{"ZREM missing member", [][]string{{"ZADD", "z", "1", "m"}}, []string{"ZREM", "z", "other"}, 0},
		{"SADD existing member", [][]string{{"SADD", "s", "a"}}, []string{"SADD", "s", "a", "b"}, 1},
		{"SREM missing key", nil, []string{"SREM", "s", "a"}, 0},
		{"HDEL missing field", [][]string{{"HSET", "h", "f", "v"}}, []string{"HDEL", "h", "other"}, 0},
		{"LPOP missing key", nil, []string{"LPOP", "l"}, 0},
		{"RPUSH counts elements", nil, []string{"RPUSH", "l", "a", "b", "c"}, 3},
		{"PERSIST without TTL", [][]string{{"SET", "k", "v"}}, []string{"PERSIST", "k"}, 0},
		{"RENAME onto itself", [][]string{{"SET", "k", "v"}}, []string{"RENAME", "k", "k"}, 0},
		{"JSON.SET NX on existing key", [][]string{{"JSON.SET", "j", "$", `{"a":1}`}}, []string{"JSON.SET", "j", "$", "2", "NX"}, 0},
		{"JSON.DEL missing path", [][]string{{"JSON.SET", "j", "$", `{"a":1}`}}, []string{"JSON.DEL", "j", "$.b"}, 0},
		{"FLUSHALL on empty keyspace", nil, []string{"FLUSHALL"}, 0},
		{"FLUSHALL counts keys", [][]string{{"SET", "a", "1"}, {"SET", "b", "1"}}, []string{"FLUSHALL"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sched, _ := newCountingEngine(t)
			for _, c := range tt.setup {
				do(t, e, c[0], c[1:]...)
			}
			before := sched.Pending()

			reply := do(t, e, tt.cmd[0], tt.cmd[1:]...)
			require.False(t, reply.IsError(), string(reply.String))
			assert.Equal(t, tt.want, sched.Pending()-before)
		})
	}
}

func TestPersistenceDisabled(t *testing.T) {
	e := setupEngine()
	assert.Equal(t, "ERR persistence is disabled", string(do(t, e, "SAVE").String))
	assert.Equal(t, "ERR persistence is disabled", string(do(t, e, "BGSAVE").String))
	assert.Positive(t, do(t, e, "LASTSAVE").Integer)
}

func TestCommandMetrics(t *testing.T) {
	ks, err := storage.NewKeyspace(4)
	require.NoError(t, err)
	m := metrics.New()
	e := NewEngine(EngineConfig{Keyspace: ks, Metrics: m}, zap.NewNop())

	do(t, e, "SET", "k", "v")
	do(t, e, "SET", "k")
	do(t, e, "GET", "k")

	// the arity failure is rejected before dispatch and not observed
	series, err := testutil.GatherAndCount(m.Registry(), "moonstone_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)

	series, err = testutil.GatherAndCount(m.Registry(), "moonstone_command_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestCommandIntrospection(t *testing.T) {
	e := setupEngine()

	count := do(t, e, "COMMAND", "COUNT")
	assert.EqualValues(t, len(commandRegistry), count.Integer)

	all := do(t, e, "COMMAND")
	assert.Len(t, all.Array, len(commandRegistry))

	info := do(t, e, "COMMAND", "INFO", "get", "nope")
	require.Len(t, info.Array, 2)
	assert.Equal(t, "get", string(info.Array[0].Array[0].String))
	assert.EqualValues(t, 2, info.Array[0].Array[1].Integer)
	assert.True(t, info.Array[1].IsNull)

	docs := do(t, e, "COMMAND", "DOCS", "geosearch")
	require.Len(t, docs.Array, 2)
	assert.Equal(t, "geosearch", string(docs.Array[0].String))
	assert.True(t, slices.Contains(bulks(docs.Array[1]), "geo"))

	assert.True(t, do(t, e, "COMMAND", "BOGUS").IsError())
}

func TestInfo(t *testing.T) {
	e := setupEngine()
	do(t, e, "SET", "k", "v")
	do(t, e, "GEOADD", "g", "13.361389", "38.115556", "Palermo")

	out := string(do(t, e, "INFO").String)
	assert.Contains(t, out, "moonstone_version:"+Version)
	assert.Contains(t, out, "db0:keys=2")
	assert.Contains(t, out, "geo_keys:1")

	only := string(do(t, e, "INFO", "clients").String)
	assert.Contains(t, only, "connected_clients:0")
	assert.NotContains(t, only, "# Server")
}

func TestFlushAllDropsGeoIndex(t *testing.T) {
	e := setupEngine()
	do(t, e, "SET", "k", "v")
	do(t, e, "GEOADD", "g", "13.361389", "38.115556", "Palermo")

	assert.Equal(t, "OK", string(do(t, e, "FLUSHALL").String))
	assert.EqualValues(t, 0, do(t, e, "DBSIZE").Integer)
	assert.Equal(t, 0, e.Index().Keys())
	assert.True(t, do(t, e, "FLUSHALL", "LAZY").IsError())
}

func TestGCRemovesExpiredKeys(t *testing.T) {
	ks, err := storage.NewKeyspace(1)
	require.NoError(t, err)
	gc := config.DefaultGCConfig()
	gc.Interval = 5 * time.Millisecond
	e := NewEngine(EngineConfig{Keyspace: ks, GC: gc}, zap.NewNop())

	for _, k := range []string{"a", "b", "c"} {
		do(t, e, "SET", k, "v", "PX", "10")
	}
	do(t, e, "GEOADD", "g", "13.361389", "38.115556", "Palermo")
	do(t, e, "PEXPIRE", "g", "10")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunGC(ctx) }()

	assert.Eventually(t, func() bool { return ks.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, e.Index().Keys())

	cancel()
	require.NoError(t, <-done)
}
