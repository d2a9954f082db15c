package exchange

import "fmt"

func restAdapterFor(name string) (restAdapter, error) {
	switch name {
	case "binance":
		return binanceRESTAdapter{}, nil
	case "coinbase":
		return coinbaseRESTAdapter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, name)
	}
}

func wsAdapterFor(name string) (wsAdapter, error) {
	switch name {
	case "binance":
		return binanceWSAdapter{}, nil
	case "coinbase":
		return coinbaseWSAdapter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, name)
	}
}

// SupportedExchanges lists every exchange name the factories accept.
func SupportedExchanges() []string {
	return []string{"binance", "coinbase"}
}
