package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	api "recruitpulse-backend/cmd/api"
	"recruitpulse-backend/internal/job/delivery"
	"recruitpulse-backend/internal/job/repository"
	"recruitpulse-backend/internal/job/scheduler"
	"recruitpulse-backend/internal/job/usecase"
	"recruitpulse-backend/internal/notification"
	"recruitpulse-backend/pkg/config"
	"recruitpulse-backend/pkg/fcm"
	"recruitpulse-backend/pkg/gdocs"
	"recruitpulse-backend/pkg/gmail"
	"recruitpulse-backend/pkg/logger"
	"recruitpulse-backend/pkg/telegram"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogJSON, cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatalw("Server stopped with error", "error", err)
	}
	zlog.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	repo, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	// Gmail and Docs share the mailbox owner's token file
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, gmail.NewTokenFile(cfg.GoogleTokenFile), cfg.GoogleAPITimeout, log)
	mailers := usecase.MailerFactoryFunc(func(ctx context.Context) (usecase.Mailer, error) {
		m, err := gmailService.NewMailer(ctx)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
	docs := gdocs.NewClient(gmailService, cfg.GoogleAPITimeout, log)

	// Notification destinations
	chatIDs, err := notification.ParseChatIDs(cfg.TelegramChatIDs)
	if err != nil {
		return errors.Wrap(err, "TELEGRAM_CHAT_IDS")
	}
	destinations := notification.FileDestinations{
		Path:     cfg.NotifyDestinationsFile,
		Fallback: notification.Destinations{Telegram: chatIDs},
	}

	dispatcherOpts := []notification.DispatcherOption{notification.WithLogger(log)}
	if cfg.NotifyRatePerSecond > 0 {
		dispatcherOpts = append(dispatcherOpts, notification.WithRateLimit(cfg.NotifyRatePerSecond))
	}
	var tg *telegram.Client
	if cfg.TelegramBotToken != "" {
		tg = telegram.NewClient(cfg.TelegramBotToken, cfg.NotifyMessageTimeout, cfg.NotifyAttachmentTimeout)
		dispatcherOpts = append(dispatcherOpts, notification.WithTelegram(tg))
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, Telegram notifications disabled")
	}
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, log)
		if err != nil {
			log.Warnw("Failed to initialize FCM client, push notifications disabled", "error", err)
		} else {
			dispatcherOpts = append(dispatcherOpts, notification.WithPush(fcmClient))
		}
	}
	dispatcher := notification.NewDispatcher(destinations, dispatcherOpts...)

	// Use cases
	followUps := usecase.NewFollowUpService(dispatcher, time.Now, log)
	drafts := usecase.NewDraftService(repo, mailers, docs, dispatcher, cfg.PDFOutputDir, log)
	sched := scheduler.NewFollowUpScheduler(repo, mailers, followUps, cfg.FollowUpInterval, cfg.FollowUpRunOnStart, log)

	// HTTP handlers
	var callbacks *delivery.CallbackHandler
	if tg != nil {
		callbacks = delivery.NewCallbackHandler(tg, drafts, destinations, cfg.TelegramWebhookSecret, log)
	}
	jobHandler := delivery.NewJobHandler(repo, drafts, sched, cfg.PDFOutputDir, cfg.BaseURL, log)
	srv := api.NewHandler(jobHandler, callbacks).Server(":" + cfg.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })

	if callbacks != nil && cfg.TelegramPolling {
		g.Go(func() error { return callbacks.Poll(gctx) })
	}

	// Gmail push notifications only speed up detection, the interval pass
	// still runs without them
	if cfg.GoogleProjectID != "" {
		topic := cfg.GooglePubSubTopic
		if topic == "" {
			topic = "gmail-updates"
		}
		watcher, err := notification.NewGmailWatcher(gctx, cfg.GoogleProjectID, topic, cfg.GoogleCredentials, sched, log)
		if err != nil {
			log.Errorw("Failed to initialize Gmail watcher", "error", err)
		} else {
			defer func() { _ = watcher.Close() }()
			g.Go(func() error {
				if err := watcher.Start(gctx); err != nil {
					log.Errorw("Gmail watcher stopped", "error", err)
				}
				return nil
			})
			g.Go(func() error {
				renewWatch(gctx, gmailService, fullTopicName(cfg.GoogleProjectID, topic), cfg.GmailWatchRenewEvery, log)
				return nil
			})
		}
	} else {
		log.Warn("GOOGLE_PROJECT_ID not configured, Gmail push notifications disabled")
	}

	g.Go(func() error {
		log.Infow("Server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if callbacks != nil {
		// let draft updates started from Telegram finish their writes
		callbacks.Wait()
	}
	return err
}

func openStore(cfg *config.Config, log *zap.SugaredLogger) (repository.JobRepository, error) {
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to database")
		}
		return repository.NewGormJobRepository(db, repository.WithLogger(log))
	case "json", "":
		return repository.NewJSONJobRepository(cfg.JobsFile, repository.WithLogger(log))
	default:
		return nil, errors.Newf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// fullTopicName returns the "projects/<p>/topics/<t>" form Gmail watch expects
func fullTopicName(projectID, topic string) string {
	if strings.Contains(topic, "/") {
		return topic
	}
	return "projects/" + projectID + "/topics/" + topic
}

// renewWatch keeps the Gmail watch alive. Gmail drops a watch after seven days.
func renewWatch(ctx context.Context, gmailService *gmail.Service, topic string, every time.Duration, log *zap.SugaredLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := gmailService.Watch(ctx, topic); err != nil {
			log.Warnw("Failed to renew Gmail watch", "topic", topic, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
