// Package calendar reads availability from the Google Calendar API.
//
// Busy time comes from the freeBusy endpoint, which returns busy ranges
// directly. Details mode lists events with pagination and redacts events
// whose visibility is private or confidential before they leave this package.
//
// Example usage:
//
//	client := calendar.NewClient(sessionManager, calendar.WithLocation(loc))
//	blocks, err := client.FetchBusy(ctx, period.ForDate(time.Now(), period.Week, loc))
//	if err != nil {
//	    return err
//	}
package calendar
