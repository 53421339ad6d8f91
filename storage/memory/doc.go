// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
//
// All state lives behind one RWMutex, so ConsumeAuthCode is a plain
// fetch-and-delete under the write lock. Records are copied on the way in
// and out; callers never share memory with the store.
package memory
