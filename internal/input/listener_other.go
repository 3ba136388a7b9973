//go:build !windows && !linux

package input

import "errors"

func startRawListener(dispatch func(kind Kind)) (func(), error) {
	return nil, errors.New("global input monitoring is not supported on this platform")
}
