package transport

import "github.com/codership/gcs/gcstypes"

func init() {
	Register("spread", func(address string) (GroupTransport, error) {
		return nil, gcstypes.NewError(gcstypes.KindFatal,
			"spread backend is retired; the legacy Spread wire protocol is out of scope for this core")
	})
}
