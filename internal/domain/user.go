// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"unicode/utf8"
)

const MaxNicknameLen = 64

// ValidateNickname trims the nickname and checks it can be used as a room
// resource part.
func ValidateNickname(nick string) (string, error) {
	nick = strings.TrimSpace(nick)
	if len(nick) == 0 {
		return "", ErrNicknameEmpty
	}
	if utf8.RuneCountInString(nick) > MaxNicknameLen {
		return "", ErrNicknameTooLong
	}
	return nick, nil
}

// NicknameKey is the case-folded form used for nickname lookups.
func NicknameKey(nick string) string {
	return strings.ToLower(strings.TrimSpace(nick))
}
