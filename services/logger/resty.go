package logsvc

import (
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/trezcool/shule/core"
)

// RestyLogger routes resty's logs through a core.Logger.
type RestyLogger struct {
	Logger core.Logger
}

var _ resty.Logger = RestyLogger{}

func (l RestyLogger) Errorf(format string, v ...interface{}) {
	l.Logger.Error(fmt.Sprintf(format, v...))
}

func (l RestyLogger) Warnf(format string, v ...interface{}) {
	l.Logger.Warn(fmt.Sprintf(format, v...))
}

func (l RestyLogger) Debugf(format string, v ...interface{}) {
	l.Logger.Debug(fmt.Sprintf(format, v...))
}
