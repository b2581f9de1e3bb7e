package alphavantage

// QuoteRecord is one decoded GLOBAL_QUOTE response. Values are the provider's raw
// strings; nothing is parsed or converted.
type QuoteRecord struct {
	Symbol           string
	Open             string
	High             string
	Low              string
	Price            string
	Volume           string
	LatestTradingDay string
	PreviousClose    string
	Change           string
	ChangePercent    string
}

// QuoteField maps a provider key inside "Global Quote" to the field name used for entries.
type QuoteField struct {
	ProviderKey string
	Name        string
}

// QuoteSchema lists every field of a GLOBAL_QUOTE response in publish order.
var QuoteSchema = []QuoteField{
	{ProviderKey: "01. symbol", Name: "symbol"},
	{ProviderKey: "02. open", Name: "open"},
	{ProviderKey: "03. high", Name: "high"},
	{ProviderKey: "04. low", Name: "low"},
	{ProviderKey: "05. price", Name: "price"},
	{ProviderKey: "06. volume", Name: "volume"},
	{ProviderKey: "07. latest trading day", Name: "latestTradingDay"},
	{ProviderKey: "08. previous close", Name: "previousClose"},
	{ProviderKey: "09. change", Name: "change"},
	{ProviderKey: "10. change percent", Name: "changePercent"},
}

// FieldValue is one (name, value) pair of a record.
type FieldValue struct {
	Name  string
	Value string
}

// Fields returns the record's values in QuoteSchema order.
func (r QuoteRecord) Fields() []FieldValue {
	return []FieldValue{
		{"symbol", r.Symbol},
		{"open", r.Open},
		{"high", r.High},
		{"low", r.Low},
		{"price", r.Price},
		{"volume", r.Volume},
		{"latestTradingDay", r.LatestTradingDay},
		{"previousClose", r.PreviousClose},
		{"change", r.Change},
		{"changePercent", r.ChangePercent},
	}
}

func (r *QuoteRecord) set(name, value string) {
	switch name {
	case "symbol":
		r.Symbol = value
	case "open":
		r.Open = value
	case "high":
		r.High = value
	case "low":
		r.Low = value
	case "price":
		r.Price = value
	case "volume":
		r.Volume = value
	case "latestTradingDay":
		r.LatestTradingDay = value
	case "previousClose":
		r.PreviousClose = value
	case "change":
		r.Change = value
	case "changePercent":
		r.ChangePercent = value
	}
}
