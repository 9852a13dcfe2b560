/*
Package session owns the state of a practice or exam run and its persistence.

State is the single authoritative model of the run (selected tasks, mode,
cursor and per-task results). Every mutation is mirrored to a Persister and
announced to subscribed observers. Manager wraps a ports.SessionStore with
per-key locking and an optional distributed lock, so several processes can
share one Redis-backed session safely.
*/
package session
