package wifi

import "errors"

// ErrNoAddress is returned by LocalIP when the interface has no IPv4 address.
var ErrNoAddress = errors.New("no IPv4 address on interface")
