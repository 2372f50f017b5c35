package polymarket

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"polyarb/internal/domain"
)

// APIMarket mirrors one market object from the Gamma /markets endpoint. The
// API is loose with types: prices and volumes arrive as numbers, strings, or
// stringified arrays depending on the market, so the raw fields are decoded
// leniently.
type APIMarket struct {
	ConditionID   string          `json:"conditionId"`
	Question      string          `json:"question"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	Tokens        []APIToken      `json:"tokens"`
	EndDate       string          `json:"endDate"`
	Liquidity     flexFloat       `json:"liquidity"`
	Volume24hr    flexFloat       `json:"volume24hr"`
	Active        bool            `json:"active"`
	Closed        bool            `json:"closed"`
}

// APIToken is one outcome token of a market.
type APIToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// ToContract converts an API market into a domain contract. It returns false
// when the market is missing required fields, has unparseable prices, or is
// not a class the bot monitors.
func (m *APIMarket) ToContract(now time.Time) (domain.Contract, bool) {
	if m.ConditionID == "" || m.Question == "" {
		return domain.Contract{}, false
	}

	class, ok := classifyQuestion(m.Question)
	if !ok {
		return domain.Contract{}, false
	}

	yes, no, ok := parseOutcomePrices(m.OutcomePrices)
	if !ok {
		return domain.Contract{}, false
	}

	var yesToken, noToken string
	if len(m.Tokens) > 0 {
		yesToken = m.Tokens[0].TokenID
	}
	if len(m.Tokens) > 1 {
		noToken = m.Tokens[1].TokenID
	}

	end, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		// A missing end date gets a conservative one-hour horizon.
		end = now.Add(time.Hour)
	}

	return domain.Contract{
		ID:          m.ConditionID,
		Question:    m.Question,
		Class:       class,
		YesPrice:    yes,
		NoPrice:     no,
		YesTokenID:  yesToken,
		NoTokenID:   noToken,
		EndTime:     end.UTC(),
		Liquidity:   float64(m.Liquidity),
		Volume24h:   float64(m.Volume24hr),
		LastUpdated: now,
	}, true
}

// flexFloat decodes a JSON number, a quoted number, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// parseOutcomePrices extracts the yes/no prices from the outcomePrices field,
// which may be an array of numbers, an array of strings, a stringified array,
// or contain nested one-element arrays.
func parseOutcomePrices(raw json.RawMessage) (yes, no float64, ok bool) {
	if len(raw) == 0 {
		return 0, 0, false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		// Possibly a stringified array like "[\"0.5\", \"0.5\"]" or
		// "['0.5', '0.5']".
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, 0, false
		}
		s = strings.ReplaceAll(s, "'", `"`)
		if err := json.Unmarshal([]byte(s), &elems); err != nil {
			return 0, 0, false
		}
	}
	if len(elems) < 2 {
		return 0, 0, false
	}

	yes, ok = parseLooseFloat(elems[0])
	if !ok {
		return 0, 0, false
	}
	no, ok = parseLooseFloat(elems[1])
	if !ok {
		return 0, 0, false
	}
	return yes, no, true
}

// parseLooseFloat accepts a number, a numeric string, or a nested one-element
// array of either.
func parseLooseFloat(raw json.RawMessage) (float64, bool) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}
	var nested []json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return parseLooseFloat(nested[0])
	}
	return 0, false
}

// cryptoWordRe matches crypto asset mentions on word boundaries, so that
// "Netherlands" does not count as an ETH market.
var cryptoWordRe = regexp.MustCompile(`\b(bitcoin|btc|ethereum|eth|xrp|ripple|solana|sol)\b`)

// timeIndicators mark questions tied to a specific clock time.
var timeIndicators = []string{
	"am est", "pm est", "am et", "pm et", " am ", " pm ",
	":00", ":05", ":10", ":15", ":20", ":25", ":30", ":35", ":40", ":45", ":50", ":55",
}

// classKeywords maps each contract class to its question keywords, checked in
// order.
var classKeywords = []struct {
	class    domain.ContractClass
	keywords []string
}{
	{domain.ClassCrypto5m, []string{"5 minutes", "5 minute", "5-minute", "5min"}},
	{domain.ClassCrypto15m, []string{"15 minutes", "15 minute", "15-minute", "15min"}},
	{domain.ClassCrypto1h, []string{"1 hour", "60 minutes", "60 minute"}},
	{domain.ClassCryptoUpDown, []string{"up or down", "up/down", "higher or lower", "above or below"}},
	{domain.ClassSportsLive, []string{"live", "in-game", "in game"}},
	{domain.ClassSportsPregame, []string{"nfl", "nba", "mlb", "soccer", "game", "match"}},
	{domain.ClassStocks, []string{"stock", "share", "nasdaq", "s&p", "dow"}},
	{domain.ClassEconomic, []string{"gdp", "cpi", "inflation", "fed", "employment", "jobs"}},
	{domain.ClassNews, []string{"breaking", "announcement", "report"}},
}

// classifyQuestion assigns a contract class from the question text. A crypto
// question tied to a clock time is treated as a short-window crypto market
// even without an explicit duration keyword.
func classifyQuestion(question string) (domain.ContractClass, bool) {
	q := strings.ToLower(question)

	isCrypto := cryptoWordRe.MatchString(q)
	if isCrypto {
		for _, ind := range timeIndicators {
			if strings.Contains(q, ind) {
				return domain.ClassCrypto5m, true
			}
		}
	}

	for _, ck := range classKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(q, kw) {
				return ck.class, true
			}
		}
	}
	return "", false
}
