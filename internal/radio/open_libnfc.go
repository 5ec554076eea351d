//go:build libnfc

package radio

import (
	"github.com/sirupsen/logrus"

	"cardprobe/internal/mifare"
	"cardprobe/internal/radio/libnfc"
)

func openLibNFC(opts Options, log logrus.FieldLogger) (mifare.Radio, CloseFunc, error) {
	r, err := libnfc.Open(opts.Connstring, opts.CommandTimeout, log)
	if err != nil {
		return nil, noClose, err
	}
	return r, r.Close, nil
}
