// Package google signs the user in to Google with the OAuth authorization
// code flow, PKCE and a loopback redirect.
//
// Tokens are held in a memory-lifetime store only: a Google session never
// outlives the process. Logout revokes the token at Google before forgetting it.
package google
