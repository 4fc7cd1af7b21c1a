// Package redisjob implements the job store and work queue on Redis.
// Each job lives in one key holding the serialized record with a TTL that
// is refreshed on every write; pending job ids sit in a single list key
// popped with a blocking BLPOP.
package redisjob
