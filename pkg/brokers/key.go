package brokers

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// MessageKey - xxh3 отпечаток тела сообщения.
// Повторная публикация той же записи попадает в ту же партицию.
func MessageKey(body []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(body))
}
