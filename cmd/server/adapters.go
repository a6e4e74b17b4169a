package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"trustline/internal/ledger"
	dErrors "trustline/pkg/domain-errors"
)

// staticOracle quotes from a fixed price table, in USD cents per asset unit.
// Prices come from TRUSTLINE_ORACLE_PRICES ("ETH=250000,BTC=6500000").
// Production deployments replace this with a real price feed adapter.
type staticOracle struct {
	prices map[string]int64
}

func newStaticOracle() *staticOracle {
	prices := map[string]int64{
		"ETH": 250_000,
		"BTC": 6_500_000,
	}
	for _, pair := range strings.Split(os.Getenv("TRUSTLINE_ORACLE_PRICES"), ",") {
		asset, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if price, err := strconv.ParseInt(raw, 10, 64); err == nil && price > 0 {
			prices[strings.ToUpper(asset)] = price
		}
	}
	return &staticOracle{prices: prices}
}

func (o *staticOracle) QuoteUsd(_ context.Context, asset string, amount int64) (int64, error) {
	price, ok := o.prices[strings.ToUpper(asset)]
	if !ok {
		return 0, dErrors.Newf(dErrors.CodeOracle, "no price configured for %s", asset)
	}
	return price * amount, nil
}

// loggingCustody records transfer intents without moving assets. Custody
// mechanics live outside this service; the log line is the integration point
// until a real custodian adapter is wired.
type loggingCustody struct {
	logger *slog.Logger
}

func (c *loggingCustody) TransferIn(ctx context.Context, subject ledger.Subject, asset string, amount int64) error {
	c.logger.InfoContext(ctx, "custody transfer in", "subject", subject, "asset", asset, "amount", amount)
	return nil
}

func (c *loggingCustody) TransferOut(ctx context.Context, subject ledger.Subject, asset string, amount int64) error {
	c.logger.InfoContext(ctx, "custody transfer out", "subject", subject, "asset", asset, "amount", amount)
	return nil
}
