package transfer

import (
	"fmt"
	"math"
	"strconv"
)

var sizeUnits = []string{"B", "kB", "MB", "GB", "TB"}

// HumanFileSize formats n with 1024-based units and at most two decimals,
// trailing zeros dropped: 1536 -> "1.5 kB".
func HumanFileSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// ComposeMessage renders the notification sent to the recipient.
func ComposeMessage(fileName string, size int64, title, message, link, appURL string) string {
	return fmt.Sprintf("Sent from DWETransfer => 1 file: %s | %s\n| %s: %s\n| Download link: %s\n| %s",
		fileName, HumanFileSize(size), title, message, link, appURL)
}
