package logging

import (
	"net"

	"go.uber.org/zap/zapcore"
)

// IPs logs a list of addresses as an array of strings
type IPs []net.IP

func (a IPs) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, ip := range a {
		enc.AppendString(ip.String())
	}
	return nil
}

// IDs logs a list of string identifiers, at most maxLoggedIDs of them
type IDs[T ~string] []T

const maxLoggedIDs = 20

func (ids IDs[T]) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for i, id := range ids {
		if i == maxLoggedIDs {
			enc.AppendString("...")
			break
		}
		enc.AppendString(string(id))
	}
	return nil
}
