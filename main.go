package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"groupchat-client/internal/config"
	"groupchat-client/internal/handlers"
	"groupchat-client/internal/models"
	"groupchat-client/internal/observability"
	"groupchat-client/internal/rabbitmq"
	"groupchat-client/internal/rest"
	"groupchat-client/internal/session"
	"groupchat-client/internal/store"
	"groupchat-client/internal/telemetry"
	"groupchat-client/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, "groupchat-client", cfg.Environment)
		if err != nil {
			log.Fatalf("failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Printf("tracer shutdown: %v", err)
			}
		}()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	emitter := telemetry.NewLifecycleEmitter(publisher, "chat_client.ws", "groupchat-client", cfg.Environment)

	groupID := os.Getenv("GROUP_ID")
	token := os.Getenv("CHAT_TOKEN")
	if groupID == "" || token == "" {
		log.Fatal("GROUP_ID and CHAT_TOKEN are required")
	}

	socketURL, err := cfg.SocketURL(groupID, token)
	if err != nil {
		log.Fatalf("failed to build socket url: %v", err)
	}

	registry := store.NewRegistry()
	conn := ws.NewConn(ws.Options{URL: socketURL, GroupID: groupID, Emitter: emitter})
	history := rest.NewHistoryClient(cfg.HistoryBaseURL(), func() string { return token })

	sess := session.New(conn, registry, history, session.Options{
		GroupID:          groupID,
		SelfID:           os.Getenv("ACCOUNT_ID"),
		AutoLoadMessages: true,
		Notify: func(message string) {
			log.Printf("group %s: %s", groupID, message)
		},
		OnMessage: func(msg models.GroupChatMessage) {
			log.Printf("[%s] %s: %s", msg.GroupID, msg.Sender.Username, msg.Content)
		},
	})
	if err := sess.Start(ctx); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	router := handlers.NewRouter(registry, emitter, cfg.OpsToken, cfg.DebugRoutes)

	srv := &http.Server{Addr: cfg.OpsAddr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ops server error: %v", err)
		}
	}()

	go readInput(ctx, sess)

	<-ctx.Done()
	log.Println("shutting down")
	sess.Close()
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Printf("ops server shutdown: %v", err)
	}
}

// readInput drives the session from stdin: plain lines are sent as chat
// messages, slash commands page history and reconnect.
func readInput(ctx context.Context, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/more":
			if !sess.LoadMoreMessages(ctx) {
				log.Println("no more messages")
			}
		case line == "/reconnect":
			if err := sess.Reconnect(ctx); err != nil {
				log.Printf("reconnect: %v", err)
			}
		default:
			sess.SendTypingIndicator(true)
			sess.SendMessage(line)
		}
	}
}
