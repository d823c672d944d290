package utilities

import (
	"crypto/rand"
	"math/big"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string. Used for
// per-request correlation ids in the HTTP middleware.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID string using a node ID from
// the environment variable SNOWFLAKE_NODE. If node setup fails it falls
// back to generating a KSUID string to ensure a unique ID is returned.
func NewSnowflakeID() string {
	nodeEnv := os.Getenv("SNOWFLAKE_NODE")
	if nodeEnv == "" {
		// default to node 1 when not provided so snowflake IDs are still produced
		return NewSnowflakeIDWithNode(1)
	}
	nodeID, err := strconv.ParseInt(nodeEnv, 10, 64)
	if err != nil {
		return NewSnowflakeIDWithNode(1)
	}
	return NewSnowflakeIDWithNode(nodeID)
}

// NewSnowflakeIDWithNode generates a snowflake ID string using the provided node ID.
// If the node cannot be initialized, it falls back to a KSUID string.
func NewSnowflakeIDWithNode(nodeID int64) string {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return NewKSUID()
	}
	return node.Generate().String()
}

// NewDigitCode returns a 6-digit one-time code, uniform over 100000-999999.
// Collisions across owners are acceptable; code scope is per owner.
func NewDigitCode() string {
	return randDigits(100000, 900000)
}

// NewExternalID returns an 8-digit candidate for the user-facing account id,
// uniform over 10000000-99999999. The caller must re-draw on collision with
// an existing account.
func NewExternalID() string {
	return randDigits(10000000, 90000000)
}

func randDigits(min, span int64) string {
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(err)
	}
	return strconv.FormatInt(min+n.Int64(), 10)
}
