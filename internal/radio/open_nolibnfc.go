//go:build !libnfc

package radio

import (
	"errors"

	"github.com/sirupsen/logrus"

	"cardprobe/internal/mifare"
)

func openLibNFC(Options, logrus.FieldLogger) (mifare.Radio, CloseFunc, error) {
	return nil, noClose, errors.New("libnfc backend not compiled in (build with -tags libnfc)")
}
