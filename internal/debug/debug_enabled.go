//go:build debug

package debug

import zlog "github.com/rs/zerolog/log"

func log(format string, args ...interface{}) {
	zlog.Debug().Msgf(format, args...)
}
