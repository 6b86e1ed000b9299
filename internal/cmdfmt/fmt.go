package cmdfmt

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dsnet/golib/unitconv"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/config"
)

// Printf writes human-oriented output such as summaries. When machine
// readable JSON output is selected it goes to stderr so stdout stays clean.
func Printf(format string, a ...any) {
	if viper.GetBool(config.PrintJsonKey) || viper.GetBool(config.PrintJsonPretty) {
		fmt.Fprintf(os.Stderr, format, a...)
		return
	}
	fmt.Printf(format, a...)
}

// FormatBytes renders a byte count with an IEC prefix, or the raw count when
// the global raw flag is set.
func FormatBytes(n int64) string {
	if viper.GetBool(config.RawKey) {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%sB", unitconv.FormatPrefix(float64(n), unitconv.IEC, 1))
}

// Wrap rewraps long messages, typically errors, so table cells stay
// readable.
func Wrap(s string, width uint) string {
	return wordwrap.WrapString(s, width)
}
