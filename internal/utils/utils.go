package utils

import (
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// SetLogLevel maps the --loglevel flag onto the shared logger.
func SetLogLevel(level string) error {
	// Trace and panic levels are not exposed.
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "info":
		Log.SetLevel(logrus.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		Log.SetLevel(logrus.FatalLevel)
	default:
		return fmt.Errorf("bad log level %q", level)
	}
	return nil
}

// IsIP checks if a string is a valid IP address (IPv4 or IPv6)
func IsIP(ip string) bool {
	// Remove any surrounding square brackets for IPv6 addresses
	ip = strings.Trim(ip, "[]")
	return net.ParseIP(ip) != nil
}
