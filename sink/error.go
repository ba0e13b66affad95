package sink

import (
	"fmt"

	"github.com/juju/errors"
)

// ErrRejected means destination refused data itself, resending same batch can not succeed.
var ErrRejected = fmt.Errorf("rejected by destination")

func IsRejected(err error) bool { return err != nil && errors.Cause(err) == ErrRejected }
