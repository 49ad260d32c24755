package commander

import "fmt"

// FormatExpiry converts a duration in seconds to the service's --expire-in
// argument format: minutes below an hour, then hours, days, months, years.
// The unit value is floored but never below 1.
func FormatExpiry(seconds int) string {
	switch {
	case seconds < 3600:
		return fmt.Sprintf("%dmi", max(1, seconds/60))
	case seconds < 86400:
		return fmt.Sprintf("%dh", max(1, seconds/3600))
	case seconds < 2592000:
		return fmt.Sprintf("%dd", max(1, seconds/86400))
	case seconds < 31536000:
		return fmt.Sprintf("%dmo", max(1, seconds/2592000))
	default:
		return fmt.Sprintf("%dy", max(1, seconds/31536000))
	}
}
