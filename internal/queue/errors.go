package queue

import (
	"fmt"
	"unicode/utf8"

	"github.com/aprskalo1/UMS/internal/services"
)

// MaxErrorRunes bounds the diagnostic message stored with a failed job.
const MaxErrorRunes = 4000

// TruncateMessage trims message to at most MaxErrorRunes runes.
func TruncateMessage(message string) string {
	if utf8.RuneCountInString(message) <= MaxErrorRunes {
		return message
	}
	runes := []rune(message)
	return string(runes[:MaxErrorRunes])
}

func unavailable(op string, err error) error {
	return services.Wrap(services.ErrQueueUnavailable, "queue", op, "", err)
}

func notFound(id string) error {
	return services.Wrap(services.ErrNotFound, "queue", "lookup", fmt.Sprintf("job %s", id), nil)
}
