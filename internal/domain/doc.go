// Package domain defines the event records, decisions and collaborator
// contracts of the bot. No implementation code lives here beyond pure
// projections over these types.
package domain
