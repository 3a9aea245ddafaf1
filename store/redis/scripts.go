package redis

import goredis "github.com/redis/go-redis/v9"

// Every mutating script publishes a change event as a MessagePack array
// [key, old, new, type] with empty strings for absent values. The type
// numbers match cache.EventType.

// putIfAbsentScript: KEYS = entry, index; ARGV = value, key, channel.
// Returns the existing value, or nil if the put happened.
var putIfAbsentScript = goredis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  return old
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('PUBLISH', ARGV[3], cmsgpack.pack({ARGV[2], '', ARGV[1], 1}))
return false
`)

// putScript: KEYS = entry, index; ARGV = value, key, channel.
var putScript = goredis.NewScript(`
local old = redis.call('GET', KEYS[1])
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
local typ = 1
if old then
  typ = 2
else
  old = ''
end
redis.call('PUBLISH', ARGV[3], cmsgpack.pack({ARGV[2], old, ARGV[1], typ}))
return 1
`)

// replaceScript: KEYS = entry; ARGV = expected, value, key, channel.
// Returns 1 if the value was swapped.
var replaceScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur or cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('PUBLISH', ARGV[4], cmsgpack.pack({ARGV[3], cur, ARGV[2], 2}))
return 1
`)

// removeScript: KEYS = index, entry...; ARGV = channel, key...
// Returns the number of entries removed.
var removeScript = goredis.NewScript(`
local n = 0
for i = 2, #KEYS do
  local old = redis.call('GET', KEYS[i])
  if old then
    redis.call('DEL', KEYS[i])
    redis.call('SREM', KEYS[1], ARGV[i])
    redis.call('PUBLISH', ARGV[1], cmsgpack.pack({ARGV[i], old, '', 3}))
    n = n + 1
  end
end
return n
`)

// unlockScript: KEYS = lock; ARGV = token.
var unlockScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// joinScript: KEYS = members, version; ARGV = node id, encoded node,
// snapshot prefix. Adds the node, bumps the version and snapshots the
// members under it for a day. Returns the new version.
var joinScript = goredis.NewScript(`
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local v = redis.call('INCR', KEYS[2])
local snap = ARGV[3] .. v
local all = redis.call('HGETALL', KEYS[1])
redis.call('HSET', snap, unpack(all))
redis.call('EXPIRE', snap, 86400)
return v
`)

// leaveScript: KEYS = members, version; ARGV = node id, snapshot prefix.
// Returns the new version, or 0 if the node was not a member.
var leaveScript = goredis.NewScript(`
if redis.call('HDEL', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local v = redis.call('INCR', KEYS[2])
local snap = ARGV[2] .. v
local all = redis.call('HGETALL', KEYS[1])
if #all > 0 then
  redis.call('HSET', snap, unpack(all))
else
  redis.call('HSET', snap, '', '')
end
redis.call('EXPIRE', snap, 86400)
return v
`)
