package domain

import (
	"regexp"
	"strings"
)

const maxPlayerIDLen = 100

var roomIDPattern = regexp.MustCompile(`^room_[a-f0-9]{8}$`)

// NormalizePlayerID trims and checks 1..100 characters.
func NormalizePlayerID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", Validation("", "player id must not be empty")
	}
	if len([]rune(id)) > maxPlayerIDLen {
		return "", Validation(id, "player id must be between 1 and %d characters", maxPlayerIDLen)
	}
	return id, nil
}

func ValidateRoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return Validation(id, "invalid room id format: %s", id)
	}
	return nil
}
