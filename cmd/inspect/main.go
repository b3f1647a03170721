// Command inspect dumps the content of a history store, offline.
package main

import (
	"citychat/clock"
	"citychat/domain"
	"citychat/repositories"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	flagDriver string
	flagPath   string
	flagLimit  int
)

var rootCmd = &cobra.Command{
	Use:          "inspect",
	Short:        "Inspect a citychat history store",
	SilenceUsage: true,
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms that have a history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRepository(func(repository repositories.IHistoryRepository) error {
			rooms, err := repository.Rooms(cmd.Context())
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "#", "Room")
			for i, room := range rooms {
				table.Append([]string{strconv.Itoa(i + 1), room.String()})
			}
			table.Render()
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <locality> <country>",
	Short: "Print the most recent messages of a room, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := domain.NewRoomName(args[0], args[1])
		if err := room.Validate(); err != nil {
			return err
		}
		return withRepository(func(repository repositories.IHistoryRepository) error {
			entries, err := repository.QueryRecent(cmd.Context(), room, flagLimit)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "At", "Sender", "Text", "Sort key")
			for _, entry := range entries {
				table.Append([]string{
					entry.At.Format(time.RFC3339Nano),
					entry.SenderUserID,
					entry.Text,
					entry.SortKey,
				})
			}
			table.Render()
			return nil
		})
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagDriver, "driver", string(repositories.DriverBadger), "store driver: badger or pebble")
	flags.StringVar(&flagPath, "path", "", "store directory")
	_ = rootCmd.MarkPersistentFlagRequired("path")
	historyCmd.Flags().IntVar(&flagLimit, "limit", 10, "number of messages")
	rootCmd.AddCommand(roomsCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Inspect error: %v\n", err)
		os.Exit(1)
	}
}

func withRepository(fn func(repositories.IHistoryRepository) error) error {
	log := logs.GetLoggerFromLevel(slog.LevelWarn)
	repository, err := repositories.Open(repositories.Driver(flagDriver), flagPath, log, clock.Real())
	if err != nil {
		return fmt.Errorf("error while opening the store: %w", err)
	}
	defer func() { _ = repository.Close() }()
	return fn(repository)
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
