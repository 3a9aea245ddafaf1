package redis

// Redis key naming conventions. All keys share the store prefix
// ("datastruct:" by default).

// ── Cache keys ──

// entryKey returns the key holding one cache entry: {p}c:{cache}:e:{key}
func (s *Store) entryKey(cacheName, key string) string {
	return s.prefix + "c:" + cacheName + ":e:" + key
}

// indexKey returns the Set listing every entry key of a cache.
func (s *Store) indexKey(cacheName string) string {
	return s.prefix + "c:" + cacheName + ":idx"
}

// channelKey returns the pub/sub channel carrying a cache's change events.
func (s *Store) channelKey(cacheName string) string {
	return s.prefix + "c:" + cacheName + ":events"
}

// lockKey returns the key of an entry lock of a transactional cache.
func (s *Store) lockKey(cacheName, key string) string {
	return s.prefix + "c:" + cacheName + ":lock:" + key
}

// ── Cluster keys ──

// membersKey is the Hash of joined nodes, field = node id.
func (s *Store) membersKey() string { return s.prefix + "members" }

// versionKey is the counter holding the current topology major version.
func (s *Store) versionKey() string { return s.prefix + "topology" }

// snapshotPrefix prefixes the member snapshot Hash of each topology
// version: {p}topology:{major}
func (s *Store) snapshotPrefix() string { return s.prefix + "topology:" }

// aliveKey returns the heartbeat key of a node.
func (s *Store) aliveKey(nodeID string) string { return s.prefix + "alive:" + nodeID }

// inboxKey returns the List a node reads broadcast calls from.
func (s *Store) inboxKey(nodeID string) string { return s.prefix + "inbox:" + nodeID }

// replyKey returns the List one call's reply is pushed onto.
func (s *Store) replyKey(callID string) string { return s.prefix + "reply:" + callID }
