package auth

import "regexp"

// emailPattern accepts an unquoted dot-atom or quoted local part, followed by
// either a bracketed IPv4 literal or a domain with an alphabetic TLD.
var emailPattern = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// ValidEmail reports whether email is syntactically acceptable.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
