package main

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/websocket"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	gorilla "github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL   string `envconfig:"CHAT_SERVER_URL" default:"ws://localhost:5000/ws"`
	SessionID   string `envconfig:"CHAT_SESSION_ID"`
	DisplayName string `envconfig:"CHAT_DISPLAY_NAME"`
	// CHAT_COLOURS enables colorized output
	Colours bool `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins a session, prints every event and sends each stdin line as a message.
func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := gorilla.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerURL, err)
	}
	defer func() { _ = conn.Close() }()

	join := domain.JoinCommand{DisplayName: config.DisplayName}
	if config.SessionID != "" {
		join.SessionID = lo.ToPtr(domain.SessionID(config.SessionID))
	}
	if err := write(conn, join); err != nil {
		return exitRuntime, err
	}

	received := make(chan error, 1)
	go func() { received <- readLoop(conn) }()
	go writeLoop(conn)

	select {
	case <-ctx.Done():
		_ = conn.WriteControl(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		return exitOK, nil
	case err := <-received:
		if err != nil {
			return exitRuntime, err
		}
		return exitOK, nil
	}
}

func readLoop(conn *gorilla.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}
		e, err := websocket.DecodeEvent(data)
		if err != nil {
			continue
		}
		if err := display(e); err != nil {
			return err
		}
	}
}

func display(e event.Event) error {
	switch evt := e.(type) {
	case event.SessionCreated:
		fmt.Println(color.New(color.FgGreen, color.OpBold).Render(
			fmt.Sprintf(">>> Session %s created, share it to invite others", evt.SessionID)))
	case event.History:
		for _, m := range evt.Messages {
			printMessage(m)
		}
		fmt.Println(color.New(color.FgGray).Render(fmt.Sprintf("--- %d earlier messages ---", len(evt.Messages))))
	case event.MessagePosted:
		printMessage(evt.Message)
	case event.JoinError:
		return fmt.Errorf("join refused: %s", evt.Reason)
	}
	return nil
}

func printMessage(m domain.Message) {
	header := fmt.Sprintf("[%s] %s:", m.CreatedAt.Local().Format(time.TimeOnly), m.Author)
	fmt.Println(color.New(color.FgCyan).Render(header), m.Text)
}

func writeLoop(conn *gorilla.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := write(conn, domain.SendCommand{Text: scanner.Text()}); err != nil {
			return
		}
	}
}

func write(conn *gorilla.Conn, cmd domain.Command) error {
	data, err := websocket.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return conn.WriteMessage(gorilla.TextMessage, data)
}
