package sentryd

import "github.com/sirupsen/logrus"

// Log is the package-wide logger. It defaults to a logrus logger at
// PanicLevel so library use without an explicit logging setup stays silent;
// the CLI in cmd/sentryd raises its level with SetLevel before starting any
// interceptor.
var Log = logrus.New()

func init() {
	Log.SetLevel(logrus.PanicLevel)
}
