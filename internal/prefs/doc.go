// Package prefs stores user preferences in the long-lived store: work
// hours, saved views, provider colors and the minimum free slot length.
// Values are plain JSON under fixed keys. A value that cannot be read or
// decoded is logged and replaced by its default, never surfaced as an error.
package prefs
