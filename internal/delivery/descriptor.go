package delivery

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmptyToken is returned for token descriptors that hold no value.
var ErrEmptyToken = errors.New("delivery: endpoint token is empty")

// DecodeToken reads a descriptor stored as a bare JSON string, as mobile tokens and relay
// player ids are.
func DecodeToken(raw []byte) (string, error) {
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
