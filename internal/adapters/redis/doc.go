// Package redis implements the group store, channel transport and status
// cache on Redis.
//
// Layout, with the default "asgi" prefix:
//   - asgi:group:{group}      sorted set, member = channel, score = unix seconds of last touch
//   - asgi:channel:{channel}  list of JSON envelopes, the channel mailbox
//
// Keys are spread over one or more Redis hosts with a consistent hash of the
// group or channel name, so every node of the service reaches the same host
// for the same key without coordination.
package redis
