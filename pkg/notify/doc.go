// Package notify renders the weekly report emails with liquid templates and
// delivers them through Amazon SES or, in development, the log.
package notify
