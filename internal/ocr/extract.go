package ocr

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/susu3304/recibot/internal/receipt"
)

// itemPattern matches one recognized receipt line: name, quantity, total sum.
// Decimal separators come back as either comma or dot depending on the
// receipt locale.
var itemPattern = regexp.MustCompile(`(?i)^\s*\*?\s*([а-яёa-z][а-яёa-z0-9 .,%/-]*?)\s+(\d{1,3}(?:[.,]\d{1,3})?)\s+(\d{1,6}(?:[.,]\d{1,2})?)\s*$`)

// stopWords mark the totals section; recognition stops at the first one so
// tax lines and change never become items.
var stopWords = []string{
	"итог", "итого", "всего", "оплат", "наличны", "безналичны",
	"сдача", "ндс", "total", "сумма чека",
}

// ignoreWords filter service lines inside the item section.
var ignoreWords = []string{
	"кассир", "смена", "чек", "скидка", "пакет услуг", "терминал",
}

// ExtractItems parses recognized receipt text into raw items. Lines that do
// not look like a позиция are skipped; everything after a totals keyword is
// dropped.
func ExtractItems(text string) []receipt.RawItem {
	var items []receipt.RawItem
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if containsAny(lower, stopWords) {
			return items
		}

		m := itemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(m[1]))
		if utf8.RuneCountInString(name) <= 3 {
			continue
		}
		if containsAny(name, ignoreWords) {
			continue
		}

		quantity, ok := parseQuantity(m[2])
		if !ok {
			continue
		}
		sum, err := decimal.NewFromString(strings.ReplaceAll(m[3], ",", "."))
		if err != nil {
			continue
		}
		// The matched sum is the line total; the claimable unit price is
		// total over quantity. Exact division here, since quantity is a
		// small integer.
		unitPrice := sum.Div(decimal.NewFromInt(int64(quantity)))
		items = append(items, receipt.RawItem{
			Name:      name,
			UnitPrice: receipt.MoneyFromDecimal(unitPrice),
			Quantity:  quantity,
		})
	}
	return items
}

// parseQuantity handles the common OCR artifact of quantities scaled by 100
// (weighted goods printed as 1.000 read back as 100).
func parseQuantity(s string) (int, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, false
	}
	n := int(d.IntPart())
	if n >= 100 {
		n /= 100
	}
	if n < 1 {
		n = 1
	}
	return n, true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
