package server

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/moonstone/internal/config"
	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/geo"
	"github.com/eternalApril/moonstone/internal/metrics"
	"github.com/eternalApril/moonstone/internal/persistence"
	"github.com/eternalApril/moonstone/internal/resp"
	"github.com/eternalApril/moonstone/internal/storage"
)

// Version is reported by INFO
const Version = "0.1.0"

// maxGCRounds bounds how many times one GC tick repeats while the expired ratio stays high
const maxGCRounds = 16

// EngineConfig wires the collaborators of an Engine. Index, Scheduler and Metrics may be nil
type EngineConfig struct {
	Keyspace    *storage.Keyspace
	Index       *geo.Index
	Scheduler   *persistence.Scheduler
	Metrics     *metrics.Metrics
	RequireAuth string
	GC          config.GCConfig
}

type commandEntry struct {
	cmd  command
	meta commandMetadata
}

// Engine coordinates the execution of commands and manages the background tasks of the repository
type Engine struct {
	commands    map[string]commandEntry // Registry of available commands (the key is the command name in uppercase)
	ks          *storage.Keyspace
	index       *geo.Index
	sched       *persistence.Scheduler
	metrics     *metrics.Metrics
	requireAuth string
	gc          config.GCConfig
	logger      *zap.Logger
	started     time.Time
	clients     atomic.Int64
}

// NewEngine registers the command table and attaches the geo index to the keyspace.
// It must run before a snapshot is loaded so restored geo keys are indexed
func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.Index == nil {
		cfg.Index = geo.NewIndex()
	}

	e := &Engine{
		commands:    make(map[string]commandEntry),
		ks:          cfg.Keyspace,
		index:       cfg.Index,
		sched:       cfg.Scheduler,
		metrics:     cfg.Metrics,
		requireAuth: cfg.RequireAuth,
		gc:          cfg.GC,
		logger:      logger,
		started:     time.Now(),
	}
	e.ks.SetObserver(indexObserver{index: e.index})
	e.registerBasicCommand()

	return e
}

// indexObserver keeps the geo index in step with whole-value changes of geo keys
type indexObserver struct {
	index *geo.Index
}

func (o indexObserver) Stored(key string, v storage.Value) {
	if g, ok := v.(*storage.Geo); ok {
		o.index.Load(key, g.Points())
	}
}

func (o indexObserver) Removed(key string, v storage.Value) {
	if _, ok := v.(*storage.Geo); ok {
		o.index.DropKey(key)
	}
}

// Index returns the geo index derived from the keyspace
func (e *Engine) Index() *geo.Index {
	return e.index
}

// RunGC triggers the active expiration mechanism until ctx is cancelled
func (e *Engine) RunGC(ctx context.Context) error {
	if !e.gc.Enabled {
		return nil
	}

	ticker := time.NewTicker(e.gc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.expireCycle()
		case <-ctx.Done():
			e.logger.Info("GC stopped")
			return nil
		}
	}
}

// expireCycle samples every shard and repeats while more than MatchThreshold of the sample was expired
func (e *Engine) expireCycle() {
	for range maxGCRounds {
		stats := e.ks.DeleteExpired(e.gc.SamplesPerCheck)

		if stats > 0 && e.logger.Core().Enabled(zap.DebugLevel) {
			e.logger.Debug("GC delete expired", zap.Float64("expired_ratio", stats))
		}

		if stats < e.gc.MatchThreshold {
			return
		}
	}
}

// register adds a new command to the engine. Every command needs an entry in commandRegistry
func (e *Engine) register(name string, cmd command) {
	name = strings.ToUpper(name)
	meta, ok := commandRegistry[name]
	if !ok {
		panic("server: no metadata for command " + name)
	}
	e.commands[name] = commandEntry{cmd: cmd, meta: meta}
}

// registerBasicCommand fills the registry with standard commands
func (e *Engine) registerBasicCommand() {
	e.register("PING", commandFunc(ping))
	e.register("ECHO", commandFunc(echo))
	e.register("AUTH", commandFunc(auth))
	e.register("QUIT", commandFunc(quit))
	e.register("COMMAND", commandFunc(cmd))
	e.register("DBSIZE", commandFunc(dbsize))
	e.register("FLUSHALL", commandFunc(flushall))
	e.register("SAVE", commandFunc(save))
	e.register("BGSAVE", commandFunc(bgsave))
	e.register("LASTSAVE", commandFunc(lastsave))
	e.register("INFO", commandFunc(info))

	e.register("DEL", commandFunc(del))
	e.register("EXISTS", commandFunc(exists))
	e.register("TYPE", commandFunc(typeCmd))
	e.register("KEYS", commandFunc(keys))
	e.register("SCAN", commandFunc(scan))
	e.register("RENAME", commandFunc(rename))
	e.register("EXPIRE", commandFunc(expire))
	e.register("PEXPIRE", commandFunc(pexpire))
	e.register("TTL", commandFunc(ttl))
	e.register("PTTL", commandFunc(pttl))
	e.register("PERSIST", commandFunc(persist))

	e.register("GET", commandFunc(get))
	e.register("SET", commandFunc(set))
	e.register("MGET", commandFunc(mget))
	e.register("MSET", commandFunc(mset))
	e.register("INCR", commandFunc(incr))
	e.register("INCRBY", commandFunc(incrby))
	e.register("DECR", commandFunc(decr))
	e.register("DECRBY", commandFunc(decrby))
	e.register("APPEND", commandFunc(appendCmd))
	e.register("STRLEN", commandFunc(strlen))

	e.register("LPUSH", commandFunc(lpush))
	e.register("RPUSH", commandFunc(rpush))
	e.register("LPOP", commandFunc(lpop))
	e.register("RPOP", commandFunc(rpop))
	e.register("LLEN", commandFunc(llen))
	e.register("LRANGE", commandFunc(lrange))
	e.register("LINDEX", commandFunc(lindex))
	e.register("LSET", commandFunc(lset))

	e.register("HSET", commandFunc(hset))
	e.register("HGET", commandFunc(hget))
	e.register("HDEL", commandFunc(hdel))
	e.register("HEXISTS", commandFunc(hexists))
	e.register("HLEN", commandFunc(hlen))
	e.register("HKEYS", commandFunc(hkeys))
	e.register("HVALS", commandFunc(hvals))
	e.register("HGETALL", commandFunc(hgetall))

	e.register("SADD", commandFunc(sadd))
	e.register("SREM", commandFunc(srem))
	e.register("SMEMBERS", commandFunc(smembers))
	e.register("SISMEMBER", commandFunc(sismember))
	e.register("SCARD", commandFunc(scard))

	e.register("ZADD", commandFunc(zadd))
	e.register("ZREM", commandFunc(zrem))
	e.register("ZSCORE", commandFunc(zscore))
	e.register("ZCARD", commandFunc(zcard))
	e.register("ZRANK", commandFunc(zrank))
	e.register("ZRANGE", commandFunc(zrange))

	e.register("JSON.SET", commandFunc(jsonSet))
	e.register("JSON.GET", commandFunc(jsonGet))
	e.register("JSON.DEL", commandFunc(jsonDel))
	e.register("JSON.TYPE", commandFunc(jsonType))
	e.register("JSON.ARRAPPEND", commandFunc(jsonArrAppend))
	e.register("JSON.NUMINCRBY", commandFunc(jsonNumIncrBy))

	e.register("GEOADD", commandFunc(geoadd))
	e.register("GEOPOS", commandFunc(geopos))
	e.register("GEODIST", commandFunc(geodist))
	e.register("GEOHASH", commandFunc(geohashCmd))
	e.register("GEOSEARCH", commandFunc(geosearch))
	e.register("GEORADIUS", commandFunc(georadius))
}

// Execute runs one command. cmd holds the command name followed by its arguments.
// A nil session is an internal caller and skips authentication
func (e *Engine) Execute(s *Session, cmd [][]byte) resp.Value {
	if len(cmd) == 0 {
		return resp.MakeErr(dberr.New(dberr.InvalidArgument, "empty command"))
	}
	name := strings.ToUpper(string(cmd[0]))
	args := cmd[1:]

	if e.logger.Core().Enabled(zap.DebugLevel) {
		// Log the command name and number of args
		e.logger.Debug("executing command",
			zap.String("cmd", name),
			zap.Int("args_count", len(args)),
		)
	}

	entry, ok := e.commands[name]
	if !ok {
		return resp.MakeErr(dberr.Newf(dberr.InvalidArgument, "unknown command '%s'", cmd[0]))
	}

	if s != nil && e.requireAuth != "" && !s.authenticated && name != "AUTH" && name != "QUIT" {
		return resp.MakeErr(dberr.ErrNotAuthorized)
	}

	if n := len(cmd); (entry.meta.arity > 0 && n != entry.meta.arity) || n < -entry.meta.arity {
		return resp.MakeErr(dberr.WrongArgs(strings.ToLower(name)))
	}

	ctx := &commandContext{
		name:    name,
		args:    args,
		engine:  e,
		session: s,
	}

	start := time.Now()
	res := entry.cmd.execute(ctx)
	e.metrics.ObserveCommand(name, time.Since(start), res.IsError())

	if ctx.dirty > 0 && e.sched != nil {
		e.sched.Mutated(ctx.dirty)
	}

	return res
}

// ClientConnected and ClientDisconnected maintain the connected_clients figure of INFO
func (e *Engine) ClientConnected() {
	e.clients.Add(1)
	e.metrics.ConnOpened()
}

func (e *Engine) ClientDisconnected() {
	e.clients.Add(-1)
	e.metrics.ConnClosed()
}

// Clients returns the number of open client connections
func (e *Engine) Clients() int64 {
	return e.clients.Load()
}
