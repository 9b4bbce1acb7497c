// Package app holds the bot's decision engine: the recent-history buffer,
// the response policy, the chat command router, the event dispatcher and
// the match watcher. It depends on domain contracts only.
package app
