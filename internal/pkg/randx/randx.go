/*
Package randx provides functions for generating random identifiers.

It is used to generate client-side correlation ids for outgoing chat messages and short
Base62 tags that label individual transport connections in logs.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// ConnectionTagLength is the length of generated connection tags.
	ConnectionTagLength = 6
)

// CorrelationID generates a UUID v4 string that the client attaches to an outgoing message
// so that a later server echo can be matched against the optimistic copy.
func CorrelationID() string {
	return uuid.New().String()
}

// ConnectionTag generates a short Base62 string using crypto/rand.
func ConnectionTag() (string, error) {
	result := make([]byte, ConnectionTagLength)

	for i := 0; i < ConnectionTagLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for connection tag: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// MustConnectionTag is ConnectionTag with a fixed fallback on entropy failure.
func MustConnectionTag() string {
	tag, err := ConnectionTag()
	if err != nil {
		return "conn00"
	}
	return tag
}
