// Package aggregate runs availability refreshes across all calendar
// providers and derives the free slots of each day.
//
// Busy blocks from both providers are fetched concurrently and joined; a
// fetch failure in either aborts the refresh so a half-complete busy
// picture is never shown. Each refresh carries a generation number and only
// the newest one commits its Snapshot.
package aggregate
