package alphavantage_test

const ibmQuote = `{
    "Global Quote": {
        "01. symbol": "IBM",
        "02. open": "134.0000",
        "03. high": "135.5200",
        "04. low": "133.7700",
        "05. price": "134.5900",
        "06. volume": "3481293",
        "07. latest trading day": "2024-03-15",
        "08. previous close": "133.9600",
        "09. change": "0.6300",
        "10. change percent": "0.4703%"
    }
}`

const noteBody = `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute and 500 calls per day."}`
