package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/safechat/backend/pkg/client"
	"github.com/zhouzirui/safechat/backend/pkg/protocol"
)

type globalFlags struct {
	server    string
	tokenFile string
	room      string
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Command line client for the safechat backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVar(&flags.server, "server", defaultServerURL(), "backend base URL")
	root.PersistentFlags().StringVar(&flags.tokenFile, "token-file", "", "where the access token is stored (default: user config dir)")

	root.AddCommand(newRegisterCmd(flags), newLoginCmd(flags), newChatCmd(flags))
	return root
}

// 与 API 默认 PORT 保持一致。
const defaultServer = "http://localhost:8080"

func defaultServerURL() string {
	if server := os.Getenv("SAFECHAT_SERVER"); server != "" {
		return server
	}
	return defaultServer
}

func (f *globalFlags) tokenStore() (client.TokenStore, error) {
	path := f.tokenFile
	if path == "" {
		var err error
		path, err = client.DefaultTokenPath()
		if err != nil {
			return nil, err
		}
	}
	return client.FileTokenStore{Path: path}, nil
}

func credentialFlags(cmd *cobra.Command, email, password *string) {
	cmd.Flags().StringVar(email, "email", "", "account email")
	cmd.Flags().StringVar(password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

func newRegisterCmd(flags *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth := client.NewAuthClient(flags.server)
			if err := auth.Register(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "registered, now run: chatctl login")
			return nil
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func newLoginCmd(flags *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := flags.tokenStore()
			if err != nil {
				return err
			}
			session := client.Session{Auth: client.NewAuthClient(flags.server), Tokens: store}
			if _, err := session.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return nil
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func newChatCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the chat; /dm <user>, /global, /who, /quit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := flags.tokenStore()
			if err != nil {
				return err
			}
			token, err := store.Load()
			if errors.Is(err, client.ErrNoToken) {
				return fmt.Errorf("not logged in, run: chatctl login")
			}
			if err != nil {
				return err
			}

			wsURL, err := websocketURL(flags.server)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			printer := &eventPrinter{out: cmd.OutOrStdout()}
			conn, err := client.Dial(ctx, wsURL, token,
				client.WithDefaultRoom(flags.room),
				client.WithListener(printer.handle),
				client.WithLogger(log.Logger),
			)
			if err != nil {
				return err
			}
			defer conn.Close()

			return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), conn)
		},
	}
	cmd.Flags().StringVar(&flags.room, "room", "global", "default room")
	return cmd
}

// websocketURL 把 http(s) 基地址转换为 /ws 地址。
func websocketURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

type command struct {
	name string
	arg  string
}

// parseLine 识别斜杠命令，普通文本返回 name 为空。
func parseLine(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{arg: line}
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

// chatConn 是 REPL 用到的连接能力。
type chatConn interface {
	Send(text string) error
	Typing() error
	StartPrivateChat(target string) error
	BackToDefault() error
	State() *client.State
	Done() <-chan struct{}
}

func runREPL(ctx context.Context, in io.Reader, out io.Writer, conn chatConn) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			fmt.Fprintln(out, "connection closed")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(out, conn, parseLine(line))
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(out io.Writer, conn chatConn, cmd command) (bool, error) {
	switch cmd.name {
	case "":
		if cmd.arg == "" {
			return false, nil
		}
		if err := conn.Typing(); err != nil {
			return false, err
		}
		return false, conn.Send(cmd.arg)
	case "dm":
		if cmd.arg == "" {
			fmt.Fprintln(out, "usage: /dm <user email>")
			return false, nil
		}
		return false, conn.StartPrivateChat(cmd.arg)
	case "global":
		return false, conn.BackToDefault()
	case "who":
		snap := conn.State().Snapshot()
		fmt.Fprintf(out, "room %s, online: %s\n", snap.CurrentRoom, strings.Join(snap.Online, ", "))
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		fmt.Fprintf(out, "unknown command /%s\n", cmd.name)
		return false, nil
	}
}

// eventPrinter 把入站事件渲染为一行文本。
type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *eventPrinter) handle(event string, data json.RawMessage) {
	line := formatEvent(event, data)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func formatEvent(event string, data json.RawMessage) string {
	env := protocol.Envelope{Event: event, Data: data}
	switch event {
	case protocol.EventNewMessage:
		var p protocol.NewMessagePayload
		if env.Bind(&p) != nil {
			return ""
		}
		m := client.Message{Text: p.Message, ModeratedText: p.ModeratedText, Censored: p.Status == "censored", Toxicity: p.Toxicity}
		return fmt.Sprintf("[%s] %s: %s (%s)", p.Room, p.User, m.Display(), m.ToxicityLabel())
	case protocol.EventModerationNotice:
		var p protocol.ModerationNoticePayload
		if env.Bind(&p) != nil {
			return ""
		}
		return fmt.Sprintf("!! %s (toxicity %.0f%%)", p.Message, client.MeterPercent(p.Toxicity))
	case protocol.EventToxicityUpdate:
		var p protocol.ToxicityUpdatePayload
		if env.Bind(&p) != nil {
			return ""
		}
		return fmt.Sprintf("   toxicity meter: %.0f%% [%s]", client.MeterPercent(p.Toxicity), client.BandFor(p.Toxicity))
	case protocol.EventSystem:
		var p protocol.SystemPayload
		if env.Bind(&p) != nil {
			return ""
		}
		return "-- " + p.Message
	case protocol.EventTyping:
		var p protocol.TypingPayload
		if env.Bind(&p) != nil {
			return ""
		}
		return fmt.Sprintf("   %s is typing...", p.User)
	case protocol.EventPrivateRoomCreated:
		var p protocol.PrivateRoomCreatedPayload
		if env.Bind(&p) != nil {
			return ""
		}
		return fmt.Sprintf("-- private chat with %s in %s", p.With, p.Room)
	case protocol.EventError:
		var p protocol.ErrorPayload
		if env.Bind(&p) != nil {
			return ""
		}
		return "error: " + p.Message
	}
	return ""
}
