package valkey

// luaSaveAuthCode stores a code only if its hash is unused and indexes its
// expiry.
//
// KEYS[1] = code key, KEYS[2] = code expiry index
// ARGV[1] = JSON, ARGV[2] = TTL ms, ARGV[3] = expiry ms, ARGV[4] = hash
//
// Returns 1 when stored, 0 when the hash already exists.
const luaSaveAuthCode = `
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if not ok then
    return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
return 1
`

// luaConsumeAuthCode atomically fetches and deletes a code. Of any number of
// concurrent callers exactly one receives the data.
//
// KEYS[1] = code key, KEYS[2] = code expiry index
// ARGV[1] = hash
//
// Returns the JSON, or nil when the code does not exist.
const luaConsumeAuthCode = `
local data = redis.call('GET', KEYS[1])
if not data then
    return false
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return data
`

// luaSaveToken stores a token, adds it to its user's set and indexes its
// expiry. The user set's TTL is only ever extended.
//
// KEYS[1] = token key, KEYS[2] = user set, KEYS[3] = expiry index
// ARGV[1] = JSON, ARGV[2] = TTL ms, ARGV[3] = expiry ms, ARGV[4] = hash
const luaSaveToken = `
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[4])
local ttl = tonumber(ARGV[2])
if redis.call('PTTL', KEYS[2]) < ttl then
    redis.call('PEXPIRE', KEYS[2], ttl)
end
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4])
return 1
`

// luaDeleteTokensByUser deletes every token in a user set and the set.
//
// KEYS[1] = user set, KEYS[2] = expiry index
// ARGV[1] = token key prefix
//
// Returns the number of token keys deleted.
const luaDeleteTokensByUser = `
local ids = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, id in ipairs(ids) do
    n = n + redis.call('DEL', ARGV[1] .. id)
    redis.call('ZREM', KEYS[2], id)
end
redis.call('DEL', KEYS[1])
return n
`

// luaUpdateRefreshTokenUsage repoints a refresh token at a new access token
// and records when it was used, keeping the key's TTL.
//
// KEYS[1] = refresh token key
// ARGV[1] = access token hash, ARGV[2] = last used (unix ms)
//
// Returns 1 when updated, 0 when the token does not exist.
const luaUpdateRefreshTokenUsage = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 0
end
local t = cjson.decode(data)
t.access_token_id = ARGV[1]
t.last_used_at = tonumber(ARGV[2])
redis.call('SET', KEYS[1], cjson.encode(t), 'KEEPTTL')
return 1
`

// luaSaveAuthorization upserts a user's grant for an app, keeping the ID of
// an existing record.
//
// KEYS[1] = user authorization hash
// ARGV[1] = app ID, ARGV[2] = JSON
const luaSaveAuthorization = `
local rec = cjson.decode(ARGV[2])
local existing = redis.call('HGET', KEYS[1], ARGV[1])
if existing then
    rec.id = cjson.decode(existing).id
end
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(rec))
return 1
`

// luaDeleteExpired deletes every entry whose expiry is before the cutoff.
//
// KEYS[1] = expiry index
// ARGV[1] = entry key prefix, ARGV[2] = cutoff (unix ms)
//
// Returns the number of entry keys deleted.
const luaDeleteExpired = `
local bound = '(' .. ARGV[2]
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', bound)
local n = 0
for _, id in ipairs(ids) do
    n = n + redis.call('DEL', ARGV[1] .. id)
end
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', bound)
return n
`
