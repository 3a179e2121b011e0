package server

import (
	"maps"
	"slices"
	"strings"

	"github.com/eternalApril/moonstone/internal/resp"
)

type commandMetadata struct {
	arity    int      // Arity includes the command name itself
	flags    []string // read, write, fast, denyoom, etc
	firstKey int      // 1-based index of the first key
	lastKey  int      // 1-based index of the last key
	step     int      // Step count for finding keys
}

var (
	commandRegistry = map[string]commandMetadata{
		// connection and server
		"PING":     {-1, []string{"fast", "stale"}, 0, 0, 0},
		"ECHO":     {2, []string{"fast"}, 0, 0, 0},
		"AUTH":     {-2, []string{"noscript", "loading", "stale", "fast"}, 0, 0, 0},
		"QUIT":     {-1, []string{"fast", "loading", "stale"}, 0, 0, 0},
		"COMMAND":  {-1, []string{"random", "loading", "stale"}, 0, 0, 0},
		"DBSIZE":   {1, []string{"readonly", "fast"}, 0, 0, 0},
		"FLUSHALL": {-1, []string{"write"}, 0, 0, 0},
		"SAVE":     {1, []string{"admin", "noscript"}, 0, 0, 0},
		"BGSAVE":   {-1, []string{"admin", "noscript"}, 0, 0, 0},
		"LASTSAVE": {1, []string{"random", "fast"}, 0, 0, 0},
		"INFO":     {-1, []string{"random", "loading", "stale"}, 0, 0, 0},

		// generic
		"DEL":     {-2, []string{"write"}, 1, -1, 1},
		"EXISTS":  {-2, []string{"readonly", "fast"}, 1, -1, 1},
		"TYPE":    {2, []string{"readonly", "fast"}, 1, 1, 1},
		"KEYS":    {2, []string{"readonly"}, 0, 0, 0},
		"SCAN":    {-2, []string{"readonly"}, 0, 0, 0},
		"RENAME":  {3, []string{"write"}, 1, 2, 1},
		"EXPIRE":  {3, []string{"write", "fast"}, 1, 1, 1},
		"PEXPIRE": {3, []string{"write", "fast"}, 1, 1, 1},
		"TTL":     {2, []string{"readonly", "fast"}, 1, 1, 1},
		"PTTL":    {2, []string{"readonly", "fast"}, 1, 1, 1},
		"PERSIST": {2, []string{"write", "fast"}, 1, 1, 1},

		// strings
		"GET":    {2, []string{"readonly", "fast"}, 1, 1, 1},
		"SET":    {-3, []string{"write", "denyoom"}, 1, 1, 1},
		"MGET":   {-2, []string{"readonly", "fast"}, 1, -1, 1},
		"MSET":   {-3, []string{"write", "denyoom"}, 1, -1, 2},
		"INCR":   {2, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"INCRBY": {3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"DECR":   {2, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"DECRBY": {3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"APPEND": {3, []string{"write", "denyoom"}, 1, 1, 1},
		"STRLEN": {2, []string{"readonly", "fast"}, 1, 1, 1},

		// lists
		"LPUSH":  {-3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"RPUSH":  {-3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"LPOP":   {-2, []string{"write", "fast"}, 1, 1, 1},
		"RPOP":   {-2, []string{"write", "fast"}, 1, 1, 1},
		"LLEN":   {2, []string{"readonly", "fast"}, 1, 1, 1},
		"LRANGE": {4, []string{"readonly"}, 1, 1, 1},
		"LINDEX": {3, []string{"readonly"}, 1, 1, 1},
		"LSET":   {4, []string{"write", "denyoom"}, 1, 1, 1},

		// hashes
		"HSET":    {-4, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"HGET":    {3, []string{"readonly", "fast"}, 1, 1, 1},
		"HDEL":    {-3, []string{"write", "fast"}, 1, 1, 1},
		"HEXISTS": {3, []string{"readonly", "fast"}, 1, 1, 1},
		"HLEN":    {2, []string{"readonly", "fast"}, 1, 1, 1},
		"HKEYS":   {2, []string{"readonly"}, 1, 1, 1},
		"HVALS":   {2, []string{"readonly"}, 1, 1, 1},
		"HGETALL": {2, []string{"readonly"}, 1, 1, 1},

		// sets
		"SADD":      {-3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"SREM":      {-3, []string{"write", "fast"}, 1, 1, 1},
		"SMEMBERS":  {2, []string{"readonly"}, 1, 1, 1},
		"SISMEMBER": {3, []string{"readonly", "fast"}, 1, 1, 1},
		"SCARD":     {2, []string{"readonly", "fast"}, 1, 1, 1},

		// sorted sets
		"ZADD":   {-4, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"ZREM":   {-3, []string{"write", "fast"}, 1, 1, 1},
		"ZSCORE": {3, []string{"readonly", "fast"}, 1, 1, 1},
		"ZCARD":  {2, []string{"readonly", "fast"}, 1, 1, 1},
		"ZRANK":  {3, []string{"readonly", "fast"}, 1, 1, 1},
		"ZRANGE": {-4, []string{"readonly"}, 1, 1, 1},

		// json
		"JSON.SET":       {-4, []string{"write", "denyoom"}, 1, 1, 1},
		"JSON.GET":       {-2, []string{"readonly"}, 1, 1, 1},
		"JSON.DEL":       {-2, []string{"write"}, 1, 1, 1},
		"JSON.TYPE":      {-2, []string{"readonly"}, 1, 1, 1},
		"JSON.ARRAPPEND": {-4, []string{"write", "denyoom"}, 1, 1, 1},
		"JSON.NUMINCRBY": {4, []string{"write"}, 1, 1, 1},

		// geo
		"GEOADD":    {-5, []string{"write", "denyoom"}, 1, 1, 1},
		"GEOPOS":    {-2, []string{"readonly"}, 1, 1, 1},
		"GEODIST":   {-4, []string{"readonly"}, 1, 1, 1},
		"GEOHASH":   {-2, []string{"readonly"}, 1, 1, 1},
		"GEOSEARCH": {-7, []string{"readonly"}, 1, 1, 1},
		"GEORADIUS": {-6, []string{"readonly"}, 1, 1, 1},
	}
)

// commandDoc stores a description for the command
type commandDoc struct {
	summary    string
	complexity string
	group      string
	since      string
}

func doc(group, since, complexity, summary string) commandDoc {
	return commandDoc{summary: summary, complexity: complexity, group: group, since: since}
}

// commandDocsRegistry documentation registry
var commandDocsRegistry = map[string]commandDoc{
	"PING":     doc("connection", "1.0.0", "O(1)", "Ping the server."),
	"ECHO":     doc("connection", "1.0.0", "O(1)", "Return the given string."),
	"AUTH":     doc("connection", "1.0.0", "O(N) where N is the number of passwords defined for the user", "Authenticate to the server."),
	"QUIT":     doc("connection", "1.0.0", "O(1)", "Close the connection."),
	"COMMAND":  doc("server", "2.8.13", "O(N) where N is the number of commands to look up.", "Get array of command details."),
	"DBSIZE":   doc("server", "1.0.0", "O(1)", "Return the number of keys in the database."),
	"FLUSHALL": doc("server", "1.0.0", "O(N) where N is the total number of keys in all databases", "Remove all keys from all databases."),
	"SAVE":     doc("server", "1.0.0", "O(N) where N is the total number of keys in all databases", "Synchronously save the dataset to disk."),
	"BGSAVE":   doc("server", "1.0.0", "O(1)", "Asynchronously save the dataset to disk."),
	"LASTSAVE": doc("server", "1.0.0", "O(1)", "Get the Unix timestamp of the last successful save to disk."),
	"INFO":     doc("server", "1.0.0", "O(1)", "Get information and statistics about the server."),

	"DEL":     doc("generic", "1.0.0", "O(N) where N is the number of keys that will be removed.", "Delete a key."),
	"EXISTS":  doc("generic", "1.0.0", "O(N) where N is the number of keys to check.", "Determine if a key exists."),
	"TYPE":    doc("generic", "1.0.0", "O(1)", "Determine the type stored at key."),
	"KEYS":    doc("generic", "1.0.0", "O(N) with N being the number of keys in the database", "Find all keys matching the given pattern."),
	"SCAN":    doc("generic", "2.8.0", "O(1) for every call. O(N) for a complete iteration.", "Incrementally iterate the keys space."),
	"RENAME":  doc("generic", "1.0.0", "O(1)", "Rename a key."),
	"EXPIRE":  doc("generic", "1.0.0", "O(1)", "Set a key's time to live in seconds."),
	"PEXPIRE": doc("generic", "2.6.0", "O(1)", "Set a key's time to live in milliseconds."),
	"TTL":     doc("generic", "1.0.0", "O(1)", "Get the time to live for a key in seconds."),
	"PTTL":    doc("generic", "2.6.0", "O(1)", "Get the time to live for a key in milliseconds."),
	"PERSIST": doc("generic", "2.2.0", "O(1)", "Remove the expiration from a key."),

	"GET":    doc("string", "1.0.0", "O(1)", "Get the value of a key."),
	"SET":    doc("string", "1.0.0", "O(1)", "Set the string value of a key."),
	"MGET":   doc("string", "1.0.0", "O(N) where N is the number of keys to retrieve.", "Get the values of all the given keys."),
	"MSET":   doc("string", "1.0.1", "O(N) where N is the number of keys to set.", "Set multiple keys to multiple values."),
	"INCR":   doc("string", "1.0.0", "O(1)", "Increment the integer value of a key by one."),
	"INCRBY": doc("string", "1.0.0", "O(1)", "Increment the integer value of a key by the given amount."),
	"DECR":   doc("string", "1.0.0", "O(1)", "Decrement the integer value of a key by one."),
	"DECRBY": doc("string", "1.0.0", "O(1)", "Decrement the integer value of a key by the given number."),
	"APPEND": doc("string", "2.0.0", "O(1)", "Append a value to a key."),
	"STRLEN": doc("string", "2.2.0", "O(1)", "Get the length of the value stored in a key."),

	"LPUSH":  doc("list", "1.0.0", "O(N) where N is the number of elements pushed.", "Prepend one or multiple elements to a list."),
	"RPUSH":  doc("list", "1.0.0", "O(N) where N is the number of elements pushed.", "Append one or multiple elements to a list."),
	"LPOP":   doc("list", "1.0.0", "O(N) where N is the number of elements returned", "Remove and get the first elements in a list."),
	"RPOP":   doc("list", "1.0.0", "O(N) where N is the number of elements returned", "Remove and get the last elements in a list."),
	"LLEN":   doc("list", "1.0.0", "O(1)", "Get the length of a list."),
	"LRANGE": doc("list", "1.0.0", "O(S+N) where S is the start offset and N the number of elements returned.", "Get a range of elements from a list."),
	"LINDEX": doc("list", "1.0.0", "O(N) where N is the number of elements to traverse.", "Get an element from a list by its index."),
	"LSET":   doc("list", "1.0.0", "O(N) where N is the length of the list.", "Set the value of an element in a list by its index."),

	"HSET":    doc("hash", "2.0.0", "O(N) where N is the number of fields being set.", "Set the string value of a hash field."),
	"HGET":    doc("hash", "2.0.0", "O(1)", "Get the value of a hash field."),
	"HDEL":    doc("hash", "2.0.0", "O(N) where N is the number of fields to be removed.", "Delete one or more hash fields."),
	"HEXISTS": doc("hash", "2.0.0", "O(1)", "Determine if a hash field exists."),
	"HLEN":    doc("hash", "2.0.0", "O(1)", "Get the number of fields in a hash."),
	"HKEYS":   doc("hash", "2.0.0", "O(N) where N is the size of the hash.", "Get all the fields in a hash."),
	"HVALS":   doc("hash", "2.0.0", "O(N) where N is the size of the hash.", "Get all the values in a hash."),
	"HGETALL": doc("hash", "2.0.0", "O(N) where N is the size of the hash.", "Get all the fields and values in a hash."),

	"SADD":      doc("set", "1.0.0", "O(N) where N is the number of members to be added.", "Add one or more members to a set."),
	"SREM":      doc("set", "1.0.0", "O(N) where N is the number of members to be removed.", "Remove one or more members from a set."),
	"SMEMBERS":  doc("set", "1.0.0", "O(N) where N is the set cardinality.", "Get all the members in a set."),
	"SISMEMBER": doc("set", "1.0.0", "O(1)", "Determine if a given value is a member of a set."),
	"SCARD":     doc("set", "1.0.0", "O(1)", "Get the number of members in a set."),

	"ZADD":   doc("sorted-set", "1.2.0", "O(log(N)) for each item added.", "Add one or more members to a sorted set, or update its score if it already exists."),
	"ZREM":   doc("sorted-set", "1.2.0", "O(M*log(N)) with N being the number of elements and M the number removed.", "Remove one or more members from a sorted set."),
	"ZSCORE": doc("sorted-set", "1.2.0", "O(1)", "Get the score associated with the given member in a sorted set."),
	"ZCARD":  doc("sorted-set", "1.2.0", "O(1)", "Get the number of members in a sorted set."),
	"ZRANK":  doc("sorted-set", "2.0.0", "O(log(N))", "Determine the index of a member in a sorted set."),
	"ZRANGE": doc("sorted-set", "1.2.0", "O(log(N)+M) with M the number of elements returned.", "Return a range of members in a sorted set."),

	"JSON.SET":       doc("json", "1.0.0", "O(M+N) where M is the original size and N is the new size", "Sets or updates the JSON value at a path."),
	"JSON.GET":       doc("json", "1.0.0", "O(N) where N is the size of the value", "Gets the value at one or more paths in JSON serialized form."),
	"JSON.DEL":       doc("json", "1.0.0", "O(N) where N is the size of the deleted value", "Deletes a value."),
	"JSON.TYPE":      doc("json", "1.0.0", "O(1) for each path", "Returns the type of the JSON value at path."),
	"JSON.ARRAPPEND": doc("json", "1.0.0", "O(1) for each value added", "Append one or more JSON values into the array at path."),
	"JSON.NUMINCRBY": doc("json", "1.0.0", "O(1) for each path", "Increments the numeric value at path by a value."),

	"GEOADD":    doc("geo", "3.2.0", "O(log(N)) for each item added.", "Add one or more geospatial items in the geospatial index represented using a sorted set."),
	"GEOPOS":    doc("geo", "3.2.0", "O(N) where N is the number of members requested.", "Returns longitude and latitude of members of a geospatial index."),
	"GEODIST":   doc("geo", "3.2.0", "O(1)", "Returns the distance between two members of a geospatial index."),
	"GEOHASH":   doc("geo", "3.2.0", "O(1) for each member requested.", "Returns members of a geospatial index as standard geohash strings."),
	"GEOSEARCH": doc("geo", "6.2.0", "O(N+log(M)) where N is the number of candidates and M the number of results.", "Query a geospatial index for members inside an area of a box or a circle."),
	"GEORADIUS": doc("geo", "3.2.0", "O(N+log(M)) where N is the number of candidates and M the number of results.", "Query a geospatial index to fetch members matching a given maximum distance from a point."),
}

func makeFlagsArray(flags []string) resp.Value {
	vals := make([]resp.Value, len(flags))
	for i, f := range flags {
		vals[i] = resp.MakeSimpleString(f)
	}
	return resp.MakeArray(vals)
}

func makeInfoCmdArray(name string) []resp.Value {
	return []resp.Value{
		resp.MakeBulkString(strings.ToLower(name)),
		resp.MakeInteger(int64(commandRegistry[name].arity)),
		makeFlagsArray(commandRegistry[name].flags),
		resp.MakeInteger(int64(commandRegistry[name].firstKey)),
		resp.MakeInteger(int64(commandRegistry[name].lastKey)),
		resp.MakeInteger(int64(commandRegistry[name].step)),
	}
}

func getAllCommands() resp.Value {
	names := slices.Sorted(maps.Keys(commandRegistry))
	cmdArray := make([]resp.Value, 0, len(names))
	for _, name := range names {
		cmdArray = append(cmdArray, resp.MakeArray(makeInfoCmdArray(name)))
	}
	return resp.MakeArray(cmdArray)
}

// getCommandsInfo returns details for the named commands, nil for unknown ones
func getCommandsInfo(args [][]byte) resp.Value {
	if len(args) == 0 {
		return getAllCommands()
	}
	out := make([]resp.Value, 0, len(args))
	for _, arg := range args {
		name := strings.ToUpper(string(arg))
		if _, ok := commandRegistry[name]; !ok {
			out = append(out, resp.MakeNilArray())
			continue
		}
		out = append(out, resp.MakeArray(makeInfoCmdArray(name)))
	}
	return resp.MakeArray(out)
}

// getCommandsDocs returns documentation for specified commands or all commands
// Format: [Name, [Summary, val, Since, val...], Name, [...]]
func getCommandsDocs(args [][]byte) resp.Value {
	var targets []string

	if len(args) == 0 {
		targets = slices.Sorted(maps.Keys(commandDocsRegistry))
	} else {
		targets = make([]string, 0, len(args))
		for _, arg := range args {
			targets = append(targets, strings.ToUpper(string(arg)))
		}
	}

	result := make([]resp.Value, 0, len(targets)*2)

	for _, name := range targets {
		doc, ok := commandDocsRegistry[name]
		if !ok {
			continue
		}

		result = append(result, resp.MakeBulkString(strings.ToLower(name)))

		props := []resp.Value{
			resp.MakeBulkString("summary"),
			resp.MakeBulkString(doc.summary),
			resp.MakeBulkString("since"),
			resp.MakeBulkString(doc.since),
			resp.MakeBulkString("group"),
			resp.MakeBulkString(doc.group),
			resp.MakeBulkString("complexity"),
			resp.MakeBulkString(doc.complexity),
		}

		result = append(result, resp.MakeArray(props))
	}

	return resp.MakeArray(result)
}
