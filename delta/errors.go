package delta

import "github.com/pkg/errors"

var (
	errTruncated   = errors.New("delta: frame missing header byte")
	errUnknownFlag = errors.New("delta: unknown frame flag")
)
