// Package intake parses free-form chat messages into trading signals.
// The format is loose by design: direction in braces, a pair, a contract
// address, and entry/TP/SL levels, in any order and any casing.
package intake

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rehan1020/tgbot/internal/domain"
)

var (
	directionRe = regexp.MustCompile(`(?i)\{(LONG|SHORT)\}`)
	pairRe      = regexp.MustCompile(`(?i)\$?([A-Z0-9]+)\s*/\s*(USDT|USDC|USD)\b`)

	// Addresses: an explicit CA/CONTRACT/ADDRESS label wins; otherwise the
	// first EVM address, otherwise the first base58 run of plausible
	// Solana length.
	labeledAddrRe = regexp.MustCompile(`(?i)(?:CA|CONTRACT|ADDRESS)[:\s]+([1-9A-HJ-NP-Za-km-z]{32,44}|0x[a-fA-F0-9]{40})`)
	evmAddrRe     = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	solanaAddrRe  = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)

	entryRe = regexp.MustCompile(`(?i)(?:LIMIT\s*)?ENTRY[:\s]+\$?([0-9]*\.?[0-9]+)`)
	tpRe    = regexp.MustCompile(`(?i)(?:TAKE\s*PROFIT|TP)[:\s]+\$?([0-9]*\.?[0-9]+)`)
	slRe    = regexp.MustCompile(`(?i)(?:STOP\s*LOSS|SL)[:\s]+\$?([0-9]*\.?[0-9]+)`)
)

// commonWords are uppercase runs that must never be mistaken for a
// base58 contract address.
var commonWords = map[string]struct{}{
	"LONG": {}, "SHORT": {}, "ENTRY": {}, "LIMIT": {},
	"USDT": {}, "USDC": {}, "PROFIT": {}, "LOSS": {},
	"CRYPTO": {}, "TRADE": {}, "TOKEN": {},
}

// IsSignalMessage reports whether the text looks like a trading signal:
// it needs a braced direction and an entry level. Cheap pre-filter for
// chat streams; Parse does the real validation.
func IsSignalMessage(text string) bool {
	return directionRe.MatchString(text) && entryRe.MatchString(text)
}

// Parse extracts a signal from message text. All five components
// (direction, pair, contract address, entry, TP, SL) must be present;
// every failure wraps domain.ErrInvalidSignal. Short signals parse fine
// here — declining them is intake policy, not a parser concern.
func Parse(text string) (domain.Signal, error) {
	dirMatch := directionRe.FindStringSubmatch(text)
	if dirMatch == nil {
		return domain.Signal{}, fmt.Errorf("intake: no direction marker: %w", domain.ErrInvalidSignal)
	}
	direction := domain.DirectionLong
	if strings.EqualFold(dirMatch[1], "SHORT") {
		direction = domain.DirectionShort
	}

	pairMatch := pairRe.FindStringSubmatch(text)
	if pairMatch == nil {
		return domain.Signal{}, fmt.Errorf("intake: no trading pair: %w", domain.ErrInvalidSignal)
	}
	pairName := strings.ToUpper(pairMatch[1]) + "/" + strings.ToUpper(pairMatch[2])

	address := findAddress(text)
	if address == "" {
		return domain.Signal{}, fmt.Errorf("intake: no contract address: %w", domain.ErrInvalidSignal)
	}

	entry, err := findLevel(entryRe, text, "entry")
	if err != nil {
		return domain.Signal{}, err
	}
	takeProfit, err := findLevel(tpRe, text, "take profit")
	if err != nil {
		return domain.Signal{}, err
	}
	stopLoss, err := findLevel(slRe, text, "stop loss")
	if err != nil {
		return domain.Signal{}, err
	}

	return domain.NewSignal(direction, pairName, address, entry, takeProfit, stopLoss, text)
}

// findAddress picks the contract address out of the text. A labeled
// address always wins over bare matches.
func findAddress(text string) string {
	if m := labeledAddrRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := evmAddrRe.FindString(text); m != "" {
		return m
	}
	for _, candidate := range solanaAddrRe.FindAllString(text, -1) {
		if _, ok := commonWords[strings.ToUpper(candidate)]; ok {
			continue
		}
		return candidate
	}
	return ""
}

func findLevel(re *regexp.Regexp, text, name string) (float64, error) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("intake: no %s level: %w", name, domain.ErrInvalidSignal)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("intake: bad %s level %q: %w", name, m[1], domain.ErrInvalidSignal)
	}
	return v, nil
}
