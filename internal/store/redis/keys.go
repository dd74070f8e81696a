package redis

import (
	"fmt"

	"github.com/mcoot/gamesync/internal/store"
)

// bucketDepth is the number of leading path segments that select the Redis
// document holding a subtree. "rooms/7XQP/state/board" lives in the document
// for "rooms/7XQP".
const bucketDepth = 2

// splitBucket returns the bucket a path lives in and the path relative to it
func splitBucket(segs []string) (string, []string, error) {
	if len(segs) < bucketDepth {
		return "", nil, fmt.Errorf("%w: %q is above document depth", store.ErrInvalidPath, store.Join(segs...))
	}
	return store.Join(segs[:bucketDepth]...), segs[bucketDepth:], nil
}

// docKey returns the Redis key for the JSON document of a bucket
func docKey(prefix, bucket string) string {
	return fmt.Sprintf("%s:doc:%s", prefix, bucket)
}

// bucketIndexKey returns the Redis key for the SET of bucket names under a top-level segment
func bucketIndexKey(prefix, top string) string {
	return fmt.Sprintf("%s:idx:%s", prefix, top)
}

// changesChannel returns the Pub/Sub channel announcing writes to a bucket
func changesChannel(prefix, bucket string) string {
	return fmt.Sprintf("%s:changed:%s", prefix, bucket)
}

// sessionsKey returns the Redis key for the ZSET of sessions scored by last heartbeat
func sessionsKey(prefix string) string {
	return fmt.Sprintf("%s:sessions", prefix)
}

// actionsKey returns the Redis key for the HASH of a session's disconnect actions
func actionsKey(prefix, sessionID string) string {
	return fmt.Sprintf("%s:ondisconnect:%s", prefix, sessionID)
}
