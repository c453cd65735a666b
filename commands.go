package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kevinaaaquil/library/backend/config"
	"github.com/kevinaaaquil/library/backend/handlers"
	"github.com/kevinaaaquil/library/backend/jobs"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/middleware"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/service"
	"github.com/kevinaaaquil/library/backend/session"
	"github.com/kevinaaaquil/library/backend/store"
	"github.com/kevinaaaquil/library/backend/store/mongostore"
	"github.com/kevinaaaquil/library/backend/store/sqlstore"
	"github.com/kevinaaaquil/library/backend/utils"
)

// cliActor is the identity used by maintenance commands.
var cliActor = library.Actor{UserID: "cli", Role: models.RoleAdmin}

type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	store store.Store
	svc   *library.Service
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "library",
		Short:        "Library circulation backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the scheduled sweep",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		newMigrateCmd(),
		&cobra.Command{
			Use:   "sweep",
			Short: "Mark overdue loans, expire lapsed reservations and prune old notifications once",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSweep(cmd.Context(), cmd.OutOrStdout())
			},
		},
		newCreateUserCmd(),
		&cobra.Command{
			Use:   "import-books <file.json>",
			Short: "Create books from a JSON array",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runImport(cmd.Context(), args[0], cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "encrypt-secret",
			Short: "Encrypt a secret with SECRET_ENCRYPTION_KEY for use as an enc: value",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runEncryptSecret(cmd.OutOrStdout())
			},
		},
	)
	return root
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, migrate bool) (store.Store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		return mongostore.Open(ctx, cfg.MongoURI, cfg.DBName, log)
	default:
		return sqlstore.Open(ctx, sqlstore.Options{
			Driver:      cfg.StoreDriver,
			DSN:         cfg.DatabaseURL,
			AutoMigrate: migrate,
			Logger:      log,
		})
	}
}

// setup loads configuration and opens the store and service.
func setup(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pol, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg, log, cfg.AutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	opts := []library.Option{library.WithLogger(log)}
	if cfg.SMTPHost != "" {
		mailer, err := service.NewSMTPMailer(service.SMTPOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, log)
		if err != nil {
			st.Close()
			return nil, err
		}
		opts = append(opts, library.WithMailer(mailer))
	}
	return &app{cfg: cfg, log: log, store: st, svc: library.New(st, pol, opts...)}, nil
}

func runServe(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()
	cfg, log := a.cfg, a.log
	if err := config.ValidateEnv(cfg, log); err != nil {
		return err
	}

	if cfg.AdminPassword != "" {
		if _, err := a.svc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	} else {
		log.Warn("AUTH_ADMIN_PASSWORD not set; no admin account is seeded")
	}

	var revoker session.Revoker = session.NewMemoryRevoker()
	if cfg.RedisURL != "" {
		rr, err := session.NewRedisRevoker(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rr.Close()
		revoker = rr
	}

	var covers handlers.CoverStore
	if cfg.S3Bucket != "" {
		s3Service, err := service.NewS3Service(ctx, service.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			Endpoint:        cfg.S3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		covers = s3Service
	} else {
		log.Warn("AWS_S3_BUCKET not set; cover uploads are disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, log)
	sched := jobs.NewScheduler(log)
	if err := sched.AddSweep(cfg.SweepSchedule, a.svc); err != nil {
		return err
	}
	sched.Start()

	router := handlers.NewRouter(handlers.RouterConfig{
		Svc:           a.svc,
		Log:           log,
		JWTSecret:     cfg.JWTSecret,
		TokenTTL:      cfg.TokenTTL,
		Revoker:       revoker,
		Covers:        covers,
		Lookup:        service.FetchMetadataByISBN,
		MaxCoverBytes: cfg.MaxUploadMB * 1024 * 1024,
		CORSOrigins:   cfg.AllowedOrigins(),
		AuthLimiter:   limiter,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			case <-stop:
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		close(stop)
		return err
	}
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("scheduler shutdown")
	}
	log.Info("server stopped")
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the SQL schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			down := len(args) == 1 && args[0] == "down"
			if len(args) == 1 && args[0] != "up" && args[0] != "down" {
				return fmt.Errorf("unknown direction %q", args[0])
			}
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if cfg.StoreDriver == "mongo" {
				st, err := mongostore.Open(ctx, cfg.MongoURI, cfg.DBName, log)
				if err != nil {
					return err
				}
				defer st.Close()
				fmt.Fprintln(cmd.OutOrStdout(), "mongo indexes ensured")
				return nil
			}
			st, err := sqlstore.Open(ctx, sqlstore.Options{Driver: cfg.StoreDriver, DSN: cfg.DatabaseURL, Logger: log})
			if err != nil {
				return err
			}
			defer st.Close()
			if err := sqlstore.Migrate(st.DB(), st.Driver(), down); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func runSweep(ctx context.Context, out io.Writer) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()
	res, err := a.svc.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "overdue: %d, expired: %d, pruned: %d\n", res.Overdue, res.Expired, res.Pruned)
	return nil
}

func newCreateUserCmd() *cobra.Command {
	var in library.UserInput
	var readerID string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user; the password is read from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}
			in.Password = password
			if readerID != "" {
				in.ReaderID = &readerID
			}
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.store.Close()
			u, err := a.svc.CreateUser(cmd.Context(), cliActor, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Role, "role", models.RoleLibrarian, "admin, librarian or reader")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&readerID, "reader-id", "", "link to an existing reader")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// readPassword reads without echo from a terminal, or a line from piped stdin.
func readPassword(out io.Writer, prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runImport(ctx context.Context, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var rows []library.BookInput
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()
	results, err := a.svc.ImportBooks(ctx, cliActor, rows)
	if err != nil {
		return err
	}
	created := 0
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(out, "row %d (%s): %s\n", r.Index, r.Title, r.Error)
			continue
		}
		created++
	}
	fmt.Fprintf(out, "imported %d of %d books\n", created, len(rows))
	return nil
}

func runEncryptSecret(out io.Writer) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	key, err := cfg.EncryptionKey()
	if err != nil {
		return err
	}
	if key == nil {
		return errors.New("SECRET_ENCRYPTION_KEY is not set (generate with: openssl rand -base64 32)")
	}
	secret, err := readPassword(out, "Secret: ")
	if err != nil {
		return err
	}
	enc, err := utils.Encrypt([]byte(secret), key)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, enc)
	return nil
}
