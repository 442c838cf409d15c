package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizeUID converts a tag UID such as "04:ab:cd:ef", "04 AB CD EF" or
// "04-ab-cd-ef" to uppercase hex without separators.
func NormalizeUID(uid string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', ' ', '-':
			return -1
		}
		return r
	}, uid)
	if cleaned == "" {
		return "", fmt.Errorf("empty UID")
	}
	if _, err := hex.DecodeString(cleaned); err != nil {
		return "", fmt.Errorf("invalid UID %q: %w", uid, err)
	}
	return strings.ToUpper(cleaned), nil
}
