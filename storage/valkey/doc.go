// Package valkey provides a Valkey storage backend.
//
// Valkey is wire-compatible with Redis. The Store implements every storage
// interface, including storage.Sweeper, and is suited to deployments that
// run more than one server instance.
//
// # Key Schema
//
// All keys use a configurable prefix (default "sparc:oauth:"):
//
//	{prefix}client:{clientID}              -> JSON(Client)
//	{prefix}code:{hash}                    -> JSON(AuthorizationCode) (with TTL)
//	{prefix}at:{hash}                      -> JSON(AccessToken) (with TTL)
//	{prefix}rt:{hash}                      -> JSON(RefreshToken) (with TTL)
//	{prefix}user:{userID}:{appID}:at       -> SET of access token hashes
//	{prefix}user:{userID}:{appID}:rt       -> SET of refresh token hashes
//	{prefix}expiry:{code|at|rt}            -> ZSET hash -> expiry (unix ms)
//	{prefix}authz:{userID}                 -> HASH appID -> JSON(UserAuthorization)
//
// # Expiry
//
// Code and token keys carry a TTL of their expiry plus a grace period, so an
// expired entry is still returned to the server, which rejects and deletes
// it. The expiry sorted sets let DeleteExpired remove entries precisely;
// run it periodically to keep the sorted sets bounded.
//
// # Atomic Operations
//
// Consuming a code, saving a code or token with its indexes, updating a
// refresh token and upserting an authorization each run as one Lua script.
// The scripts derive some keys from the prefix, so the store expects a
// single-node or single-slot deployment.
package valkey
