package codec

import "github.com/pkg/errors"

var (
	// ErrSchemaUnknown is returned when decoding references an
	// unregistered schema_id.
	ErrSchemaUnknown = errors.New("codec: unknown schema id")
	// ErrCodecMalformed is returned when a registered decoder fails on
	// its input.
	ErrCodecMalformed = errors.New("codec: malformed payload")
	// ErrSchemaRegistered is returned by Register for a schema_id that
	// is already taken.
	ErrSchemaRegistered = errors.New("codec: schema id already registered")
)
