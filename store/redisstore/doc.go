// Package redisstore implements store.Store on Redis.
//
// # Key layout
//
// Every key is "<prefix>:{<userID>}:<suffix>" so one user's keys share a
// cluster slot:
//
//	m        hash   kind -> JSON FactorMethod
//	p:<kind> string JSON PendingSetup, PX set to its remaining lifetime
//	c:<chan> hash   id, hash, created, expires, used (newest code only)
//	b        hash   code hash -> "0" (unused) or used-at unix nanos
//	f        zset   attempt id scored by unix millis
//	d        hash   fingerprint -> JSON TrustedDevice
//
// Single-use consumption runs as Lua scripts. EnableMethod, DisableMethod
// and PendingSetup.Take use WATCH/MULTI with bounded retries.
package redisstore
