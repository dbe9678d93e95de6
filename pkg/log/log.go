package log

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// benignErrors are transport failures whatsmeow and the websocket layer raise during
// normal reconnect churn. They are dropped from process-level logging.
var benignErrors = []string{
	"conflict",
	"socket connection timeout",
	"not-authorized",
	"rate-overlimit",
	"connection closed",
	"timed out",
}

func init() {
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     true,
	}
}

// SetLevel parses a logrus level name, keeping the current level on error.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return
	}
	logger.SetLevel(parsed)
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if id, ok := c.Locals("request_id").(string); ok && id != "" {
		fields["request_id"] = id
	}
	return logger.WithFields(fields)
}

// Session returns an entry tagged with a pairing session id.
func Session(sessionID string) *logrus.Entry {
	return logger.WithField("session", sessionID)
}

// Mask hides the last four characters of a phone number or JID user part.
func Mask(id string) string {
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if len(id) < 4 {
		return id
	}
	return id[0:len(id)-4] + "xxxx"
}

// IsBenign reports whether err matches one of the known noisy transport errors.
func IsBenign(err error) bool {
	if err == nil {
		return false
	}
	return isBenignText(err.Error())
}

func isBenignText(text string) bool {
	text = strings.ToLower(text)
	for _, s := range benignErrors {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Unhandled is the process-level sink for errors nobody else handled, including
// recovered panics from background goroutines. It never exits the process.
func Unhandled(v interface{}) {
	if v == nil {
		return
	}
	var text string
	switch e := v.(type) {
	case error:
		text = e.Error()
	default:
		text = fmt.Sprintf("%v", e)
	}
	if isBenignText(text) {
		return
	}
	logger.WithField("unhandled", true).Error(text)
}
