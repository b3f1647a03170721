package main

import (
	"bufio"
	"citychat/client"
	"citychat/clock"
	"citychat/domain"
	"citychat/identity"
	hub "citychat/infrastructure/grpc/client"
	"citychat/projection"
	"citychat/runtime/workers"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var rootCmd = &cobra.Command{
	Use:   "citychat-client",
	Short: "Chat with everyone in your city",
	Long: "Joins the room of the given locality and prints its recent history, then every new message.\n" +
		"Type a line to send it. /room <locality> <country> moves to another room, /quit leaves.",
	RunE:         runClient,
	SilenceUsage: true,
}

var (
	flagLocality string
	flagCountry  string
	flagServer   string
	flagIdentity string
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagLocality, "locality", "", "resolved locality, e.g. Oslo")
	flags.StringVar(&flagCountry, "country", "", "resolved country, e.g. Norway")
	flags.StringVar(&flagServer, "server", "", "hub address (env CITYCHAT_SERVER_ADDR)")
	flags.StringVar(&flagIdentity, "identity", "", "installation identity file (env CITYCHAT_IDENTITY_PATH)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, _ []string) error {
	// 1. Configuration, logger and identity
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if flagServer != "" {
		config.ServerAddress = flagServer
	}
	if flagIdentity != "" {
		config.IdentityPath = flagIdentity
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	userID, err := identity.LoadOrCreate(config.IdentityPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Timeline and session
	out := cmd.OutOrStdout()
	p := &printer{out: out, palette: projection.NewPalette(rand.NewSource(time.Now().UnixNano())), width: config.Width}
	timeline := projection.NewTimeline()
	timeline.OnAppend(p.print)
	session := client.NewSession(log, userID, timeline).OnStatus(func(state client.State) {
		_, _ = fmt.Fprintln(out, color.Yellow.Sprintf("[%s%s]", state.Status, joinedSuffix(state)))
	})
	if flagLocality != "" || flagCountry != "" {
		room := domain.NewRoomName(flagLocality, flagCountry)
		if err := room.Validate(); err != nil {
			return err
		}
		session.SetRoom(room)
	}

	// 3. Hub connection
	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()
	connection := hub.NewHubConnection(log, conn, userID, clock.Real(), session.OnHubEvent)
	session.Bind(connection)

	// 4. Supervision: the session ends with the connection
	sup := workers.NewSupervisor(log)
	sup.Add(session, &connectionWorker{connection: connection, onClosed: sup.Stop})
	go readInput(ctx, cmd.InOrStdin(), session, connection, out)

	sup.Run(ctx)
	return nil
}

// connectionWorker runs the hub connection once: when it is closed for good
// there is nothing left to supervise.
type connectionWorker struct {
	connection *hub.HubConnection
	onClosed   func()
}

func (w *connectionWorker) Run(ctx context.Context) error {
	err := w.connection.Run(ctx)
	w.onClosed()
	return err
}

func readInput(ctx context.Context, in io.Reader, session *client.Session, connection *hub.HubConnection, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			connection.Stop()
			return
		case strings.HasPrefix(line, "/room"):
			fields := strings.Fields(line)
			if len(fields) != 3 {
				_, _ = fmt.Fprintln(out, color.Yellow.Sprint("usage: /room <locality> <country>"))
				continue
			}
			room := domain.NewRoomName(fields[1], fields[2])
			if err := room.Validate(); err != nil {
				_, _ = fmt.Fprintln(out, color.Yellow.Sprintf("bad room: %v", err))
				continue
			}
			session.SetRoom(room)
		default:
			if err := session.Send(ctx, line); err != nil {
				_, _ = fmt.Fprintln(out, color.Yellow.Sprintf("not sent: %v", err))
			}
		}
	}
	// stdin closed
	connection.Stop()
}

func joinedSuffix(state client.State) string {
	if state.Joined {
		return " " + string(state.Room)
	}
	return ""
}
