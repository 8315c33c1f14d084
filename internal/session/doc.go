// Package session owns sign-in state for each calendar provider.
//
// Each provider moves between Disconnected, Authenticating and Connected.
// Tokens are acquired silently when possible and interactively otherwise;
// a provider without an account yields an empty token so the adapters skip
// it. Panic signs everything out, wipes the memory and session stores and
// runs the registered reset hooks, and the InactivityGuard triggers it
// after 45 idle minutes.
package session
