// Package msgcache provides a bounded message-history cache used to
// reconcile edits and deletions against previously sent replies.
package msgcache
