package rediskeys

import "fmt"

// UserCacheKey generates the Redis key holding one cached user record.
func UserCacheKey(userID int) string {
	return fmt.Sprintf("user_cache:%d", userID)
}

// UserCacheIndexKey is the set of user ids currently present in the user cache.
// It backs RetrieveAllUsers and ClearUsers without a keyspace SCAN.
func UserCacheIndexKey() string {
	return "user_cache:ids"
}
