// Package msgraph talks to Microsoft Graph: it signs the user in with the
// device authorization grant (Identity) and reads their calendar view
// (Client) as busy blocks or redacted event details.
//
// The client follows @odata.nextLink pagination and retries 429/503
// responses through the shared retry policy. Any showAs other than "free"
// counts as busy; any sensitivity other than "normal" is redacted.
package msgraph
