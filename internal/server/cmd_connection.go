package server

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/resp"
)

var errPersistenceDisabled = dberr.New(dberr.Persistence, "persistence is disabled")

func ping(ctx *commandContext) resp.Value {
	switch len(ctx.args) {
	case 0:
		return resp.MakeSimpleString("PONG")
	case 1:
		return resp.MakeBulk(ctx.args[0])
	default:
		return resp.MakeErrorWrongNumberOfArguments("ping")
	}
}

func echo(ctx *commandContext) resp.Value {
	return resp.MakeBulk(ctx.args[0])
}

// auth accepts AUTH password and AUTH default password
func auth(ctx *commandContext) resp.Value {
	e := ctx.engine
	if e.requireAuth == "" {
		return resp.MakeError("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}

	var password []byte
	switch len(ctx.args) {
	case 1:
		password = ctx.args[0]
	case 2:
		if string(ctx.args[0]) != "default" {
			return resp.MakeError("WRONGPASS invalid username-password pair or user is disabled.")
		}
		password = ctx.args[1]
	default:
		return resp.MakeErr(dberr.ErrSyntax)
	}

	if subtle.ConstantTimeCompare(password, []byte(e.requireAuth)) != 1 {
		return resp.MakeError("WRONGPASS invalid username-password pair or user is disabled.")
	}
	if ctx.session != nil {
		ctx.session.authenticated = true
	}
	return resp.MakeOK()
}

func quit(ctx *commandContext) resp.Value {
	if ctx.session != nil {
		ctx.session.closing = true
	}
	return resp.MakeOK()
}

// cmd implements COMMAND, COMMAND COUNT, COMMAND DOCS and COMMAND INFO
func cmd(ctx *commandContext) resp.Value {
	if len(ctx.args) == 0 {
		return getAllCommands()
	}

	switch option(ctx.args[0]) {
	case "COUNT":
		return resp.MakeInteger(int64(len(ctx.engine.commands)))
	case "DOCS":
		return getCommandsDocs(ctx.args[1:])
	case "INFO":
		return getCommandsInfo(ctx.args[1:])
	default:
		return resp.MakeErr(dberr.Newf(dberr.InvalidArgument, "unknown subcommand '%s'", ctx.args[0]))
	}
}

func dbsize(ctx *commandContext) resp.Value {
	return resp.MakeInteger(int64(ctx.engine.ks.Len()))
}

// flushall accepts the SYNC and ASYNC modifiers, both run synchronously
func flushall(ctx *commandContext) resp.Value {
	for _, a := range ctx.args {
		if m := option(a); m != "SYNC" && m != "ASYNC" {
			return resp.MakeErr(dberr.ErrSyntax)
		}
	}
	ctx.changed(int64(ctx.engine.ks.Flush()))
	return resp.MakeOK()
}

// save writes the snapshot before replying, as Redis SAVE does. Only the calling connection waits:
// the snapshot reads shards one at a time under their read locks, so other clients keep running.
// BGSAVE is the non-blocking form
func save(ctx *commandContext) resp.Value {
	sched := ctx.engine.sched
	if sched == nil {
		return resp.MakeErr(errPersistenceDisabled)
	}
	if err := sched.SaveNow(); err != nil {
		return resp.MakeErr(err)
	}
	return resp.MakeOK()
}

func bgsave(ctx *commandContext) resp.Value {
	sched := ctx.engine.sched
	if sched == nil {
		return resp.MakeErr(errPersistenceDisabled)
	}
	if !sched.Trigger() {
		return resp.MakeError("ERR Background save already in progress")
	}
	return resp.MakeSimpleString("Background saving started")
}

func lastsave(ctx *commandContext) resp.Value {
	sched := ctx.engine.sched
	if sched == nil {
		return resp.MakeInteger(ctx.engine.started.Unix())
	}
	return resp.MakeInteger(sched.LastSave().Unix())
}

// info renders the server, clients, persistence and keyspace sections
func info(ctx *commandContext) resp.Value {
	e := ctx.engine
	want := "all"
	if len(ctx.args) > 0 {
		want = strings.ToLower(string(ctx.args[0]))
	}
	include := func(section string) bool {
		return want == "all" || want == "default" || want == "everything" || want == section
	}

	var b strings.Builder
	if include("server") {
		fmt.Fprintf(&b, "# Server\r\nmoonstone_version:%s\r\nuptime_in_seconds:%d\r\n\r\n",
			Version, int64(time.Since(e.started).Seconds()))
	}
	if include("clients") {
		fmt.Fprintf(&b, "# Clients\r\nconnected_clients:%d\r\n\r\n", e.Clients())
	}
	if include("persistence") {
		var pending, last int64
		if e.sched != nil {
			pending = e.sched.Pending()
			last = e.sched.LastSave().Unix()
		}
		fmt.Fprintf(&b, "# Persistence\r\nrdb_changes_since_last_save:%d\r\nrdb_last_save_time:%d\r\n\r\n",
			pending, last)
	}
	if include("keyspace") {
		fmt.Fprintf(&b, "# Keyspace\r\ndb0:keys=%d\r\ngeo_keys:%d\r\n", e.ks.Len(), e.index.Keys())
	}
	return resp.MakeBulkString(b.String())
}
