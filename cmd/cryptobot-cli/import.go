package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptobot/internal/domain"
	"cryptobot/internal/feed"
	"cryptobot/internal/store"
)

func importCmd() *cobra.Command {
	var (
		file      string
		symbol    string
		timeframe string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a candle CSV into the parquet store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tf, err := domain.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			candles, err := feed.ReadCSVFile(file, symbol)
			if err != nil {
				return err
			}

			valid := candles[:0]
			skipped := 0
			for _, c := range candles {
				if err := c.Validate(); err != nil {
					skipped++
					continue
				}
				valid = append(valid, c)
			}
			ps := store.NewParquetStore(cfg.Storage.DataDir)
			if err := ps.WriteCandles(cmd.Context(), tf, valid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s candles for %s into %s (%d invalid rows skipped)\n",
				len(valid), tf, symbol, cfg.Storage.DataDir, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file with timestamp,open,high,low,close,volume columns")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol the rows belong to")
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "1d", "bar timeframe of the file")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
