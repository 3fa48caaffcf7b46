package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/vrsc-agents/agent-sdk-go/pkg/utxo"
)

func selectUTXOsCommand() *cli.Command {
	return &cli.Command{
		Name:  "select-utxos",
		Usage: "Pick unspent outputs for a payment, largest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "JSON array of {txid, vout, address, amount}", Required: true},
			&cli.StringFlag{Name: "target", Usage: "Amount to pay, in coins", Required: true},
			&cli.StringFlag{Name: "fee-per-input", Usage: "Fee added per selected input, in coins", Value: "0.0001"},
			&cli.StringFlag{Name: "base-fee", Usage: "Fixed fee, in coins", Value: "0"},
		},
		Action: func(c *cli.Context) error {
			data, err := os.ReadFile(c.String("file"))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", c.String("file"), err)
			}
			var utxos []utxo.UTXO
			if err := json.Unmarshal(data, &utxos); err != nil {
				return fmt.Errorf("failed to parse %s: %w", c.String("file"), err)
			}

			amounts := make([]decimal.Decimal, 3)
			for i, name := range []string{"target", "fee-per-input", "base-fee"} {
				d, err := decimal.NewFromString(c.String(name))
				if err != nil {
					return fmt.Errorf("invalid --%s: %w", name, err)
				}
				amounts[i] = d
			}

			sel, err := utxo.SelectLargestFirst(utxos, amounts[0], amounts[1], amounts[2])
			if err != nil {
				return err
			}
			for _, in := range sel.Inputs {
				printf(c, "input: %s:%d %s\n", in.TxID, in.Vout, in.Amount.StringFixed(utxo.CoinDecimals))
			}
			printf(c, "total: %s\n", sel.Total.StringFixed(utxo.CoinDecimals))
			printf(c, "fee: %s\n", sel.Fee.StringFixed(utxo.CoinDecimals))
			printf(c, "change: %s\n", sel.Change.StringFixed(utxo.CoinDecimals))
			return nil
		},
	}
}
