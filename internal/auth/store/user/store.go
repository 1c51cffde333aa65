// Package user persists staff accounts. Usernames and non-empty emails are
// unique; a second Create reusing either returns sentinel.ErrAlreadyUsed.
package user
