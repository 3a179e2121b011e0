package server

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eternalApril/moonstone/internal/resp"
)

// render prints a reply compactly: integers as digits, nil as (nil), arrays in brackets
func render(v resp.Value) string {
	switch {
	case v.IsNull:
		return "(nil)"
	case v.Type == resp.TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case v.Type == resp.TypeArray:
		parts := make([]string, len(v.Array))
		for i, x := range v.Array {
			parts[i] = render(x)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return string(v.String)
	}
}

type step struct {
	cmd  string
	want string
}

// runScript executes each step in order on a fresh engine
func runScript(t *testing.T, steps []step) {
	t.Helper()
	e := setupEngine()
	for _, s := range steps {
		args := strings.Fields(s.cmd)
		got := render(e.Execute(nil, makeCommand(args[0], args[1:]...)))
		if !assert.Equal(t, s.want, got, s.cmd) {
			return
		}
	}
}

func TestGenericCommands(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"exists counts repeats", []step{
			{"SET a 1", "OK"},
			{"EXISTS a a b", "2"},
		}},
		{"del multi", []step{
			{"MSET a 1 b 2", "OK"},
			{"DEL a b c a", "2"},
			{"DBSIZE", "0"},
		}},
		{"type", []step{
			{"SET s v", "OK"},
			{"LPUSH l v", "1"},
			{"HSET h f v", "1"},
			{"SADD st m", "1"},
			{"ZADD z 1 m", "1"},
			{"JSON.SET j $ {}", "OK"},
			{"GEOADD g 13.361389 38.115556 p", "1"},
			{"TYPE s", "string"},
			{"TYPE l", "list"},
			{"TYPE h", "hash"},
			{"TYPE st", "set"},
			{"TYPE z", "zset"},
			{"TYPE j", "ReJSON-RL"},
			{"TYPE g", "geo"},
			{"TYPE none", "none"},
		}},
		{"keys", []step{
			{"MSET user:1 a user:2 b order:1 c", "OK"},
			{"KEYS user:?", "[user:1 user:2]"},
			{"KEYS nothing*", "[]"},
		}},
		{"rename keeps ttl", []step{
			{"SET src v EX 100", "OK"},
			{"RENAME src dst", "OK"},
			{"EXISTS src", "0"},
			{"GET dst", "v"},
			{"TTL dst", "100"},
			{"RENAME missing x", "ERR no such key"},
			{"RENAME dst dst", "OK"},
		}},
		{"expire and persist", []step{
			{"SET k v", "OK"},
			{"EXPIRE k 50", "1"},
			{"TTL k", "50"},
			{"PERSIST k", "1"},
			{"PERSIST k", "0"},
			{"TTL k", "-1"},
			{"PEXPIRE k 1500", "1"},
			{"PTTL k", "1500"},
			{"EXPIRE k -1", "1"},
			{"EXISTS k", "0"},
			{"EXPIRE k 10", "0"},
			{"EXPIRE k abc", "ERR value is not an integer or out of range"},
			{"EXPIRE k 9223372036854775807", "ERR invalid expire time in 'expire' command"},
		}},
		{"scan walks every key", []step{
			{"MSET a 1 b 2 c 3", "OK"},
			{"SCAN 0 MATCH a COUNT 1000", "[0 [a]]"},
			{"SCAN 0 MATCH b COUNT 1000", "[0 [b]]"},
			{"SCAN x", "ERR invalid cursor"},
			{"SCAN 0 COUNT", "ERR syntax error"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runScript(t, tt.steps)
		})
	}
}

func TestStringCommands(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"set get option", []step{
			{"SET k v1 GET", "(nil)"},
			{"SET k v2 GET", "v1"},
			{"SET k v3 NX GET", "v2"},
			{"GET k", "v2"},
			{"LPUSH l x", "1"},
			{"SET l v GET", "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{"LLEN l", "1"},
		}},
		{"pxat in the past deletes", []step{
			{"SET k v", "OK"},
			{"SET k v PXAT 1", "OK"},
			{"EXISTS k", "0"},
			{"SET k v EX 0", "ERR invalid expire time in 'set' command"},
		}},
		{"mget mset", []step{
			{"MSET a 1 b 2", "OK"},
			{"LPUSH l x", "1"},
			{"MGET a b l missing", "[1 2 (nil) (nil)]"},
			{"MSET a", "ERR wrong number of arguments for 'mset' command"},
			{"MSET a 1 b", "ERR wrong number of arguments for 'mset' command"},
		}},
		{"counters", []step{
			{"INCR n", "1"},
			{"INCRBY n 10", "11"},
			{"DECR n", "10"},
			{"DECRBY n 20", "-10"},
			{"GET n", "-10"},
			{"SET f 1.5", "OK"},
			{"INCR f", "ERR value is not an integer or out of range"},
			{"SET big 9223372036854775807", "OK"},
			{"INCR big", "ERR increment or decrement would overflow"},
			{"DECRBY n -9223372036854775808", "ERR decrement would overflow"},
			{"INCRBY n x", "ERR value is not an integer or out of range"},
		}},
		{"incr keeps ttl", []step{
			{"SET n 1 EX 100", "OK"},
			{"INCR n", "2"},
			{"TTL n", "100"},
		}},
		{"append strlen", []step{
			{"APPEND s Hello", "5"},
			{"APPEND s World", "10"},
			{"GET s", "HelloWorld"},
			{"STRLEN s", "10"},
			{"STRLEN missing", "0"},
			{"HSET h f v", "1"},
			{"STRLEN h", "WRONGTYPE Operation against a key holding the wrong kind of value"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runScript(t, tt.steps)
		})
	}
}

func TestEmptyStringValue(t *testing.T) {
	e := setupEngine()
	assert.Equal(t, "OK", render(e.Execute(nil, [][]byte{[]byte("SET"), []byte("k"), {}})))

	res := e.Execute(nil, makeCommand("GET", "k"))
	assert.False(t, res.IsNull)
	assert.Empty(t, res.String)
}

func TestCollectionCommands(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"list", []step{
			{"RPUSH l a b c", "3"},
			{"LPUSH l x y", "5"},
			{"LRANGE l 0 -1", "[y x a b c]"},
			{"LINDEX l -1", "c"},
			{"LINDEX l 10", "(nil)"},
			{"LSET l 0 Y", "OK"},
			{"LSET l 10 z", "ERR index out of range"},
			{"LSET missing 0 z", "ERR no such key"},
			{"LPOP l", "Y"},
			{"RPOP l 2", "[c b]"},
			{"LLEN l", "2"},
			{"LPOP l 5", "[x a]"},
			{"EXISTS l", "0"},
			{"LPOP l", "(nil)"},
			{"LPOP l 1", "(nil)"},
			{"LPOP l -1", "ERR value is out of range, must be positive"},
			{"LPOP l 1 2", "ERR wrong number of arguments for 'lpop' command"},
		}},
		{"hash", []step{
			{"HSET h a 1 b 2", "2"},
			{"HSET h a 10", "0"},
			{"HGET h a", "10"},
			{"HGET h z", "(nil)"},
			{"HEXISTS h b", "1"},
			{"HLEN h", "2"},
			{"HKEYS h", "[a b]"},
			{"HVALS h", "[10 2]"},
			{"HGETALL h", "[a 10 b 2]"},
			{"HSET h a", "ERR wrong number of arguments for 'hset' command"},
			{"HDEL h a b c", "2"},
			{"EXISTS h", "0"},
			{"HGETALL h", "[]"},
		}},
		{"set", []step{
			{"SADD s a b a", "2"},
			{"SISMEMBER s a", "1"},
			{"SISMEMBER s z", "0"},
			{"SCARD s", "2"},
			{"SMEMBERS s", "[a b]"},
			{"SREM s a z", "1"},
			{"SREM s b", "1"},
			{"EXISTS s", "0"},
		}},
		{"zset", []step{
			{"ZADD z 2 b 1 a 3 c", "3"},
			{"ZRANGE z 0 -1", "[a b c]"},
			{"ZRANGE z 0 1 WITHSCORES", "[a 1 b 2]"},
			{"ZADD z CH 5 a 2 b", "1"},
			{"ZADD z NX 9 a 4 d", "1"},
			{"ZADD z XX 0 e", "0"},
			{"ZADD z NX XX 1 a", "ERR XX and NX options at the same time are not compatible"},
			{"ZADD z 1 a 2", "ERR syntax error"},
			{"ZADD z x a", "ERR value is not a valid float"},
			{"ZSCORE z a", "5"},
			{"ZSCORE z nope", "(nil)"},
			{"ZRANK z d", "2"},
			{"ZCARD z", "4"},
			{"ZADD z 1.5 f", "1"},
			{"ZSCORE z f", "1.5"},
			{"ZADD z inf g", "1"},
			{"ZSCORE z g", "inf"},
			{"ZRANGE z 0 -1 SCORES", "ERR syntax error"},
			{"ZREM z a b c d f g", "6"},
			{"EXISTS z", "0"},
		}},
		{"wrong type leaves value intact", []step{
			{"SET s v", "OK"},
			{"LPUSH s x", "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{"HSET s f v", "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{"SADD s m", "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{"ZADD s 1 m", "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{"GEOADD s 1 1 m", "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{"JSON.SET s $ 1", "WRONGTYPE Operation against a key holding the wrong kind of value"},
			{"GET s", "v"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runScript(t, tt.steps)
		})
	}
}
