// Package redis implements the cache, cache provider and cluster contracts
// on top of a single Redis deployment.
//
// Every cache mutation runs as a Lua script that updates the value, the
// per-cache key index and publishes a change event on the cache channel in
// one step, so listeners observe mutations of one key in commit order.
// Values are MessagePack envelopes tagged with the structure header type.
//
// Membership is a hash of joined nodes plus one heartbeat key per node.
// Joins and leaves bump the topology version and store a snapshot of the
// members under that version. Broadcast calls are pushed onto per-node
// inbox lists and answered on per-call reply lists.
//
// The caller owns the Redis client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client, redis.WithPrefix("app:"))
//	node, err := s.Join(ctx, "node-a", false)
//	c, err := s.Cache(ctx, "default")
//	mgr, err := manager.New(c, manager.WithCluster(node), manager.WithCacheProvider(s))
package redis
