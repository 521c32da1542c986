package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/dur2work/app/directions"
	"github.com/umputun/dur2work/app/notify"
	"github.com/umputun/dur2work/app/routes"
	"github.com/umputun/dur2work/app/store"
	"github.com/umputun/dur2work/app/tracker"
)

var opts struct {
	Args struct {
		Start       string `positional-arg-name:"start" description:"start of the route"`
		Destination string `positional-arg-name:"destination" description:"destination of the route"`
	} `positional-args:"yes"`

	Routes      string        `short:"r" long:"routes" env:"DUR2WORK_ROUTES" description:"yaml file with routes, replaces start and destination"`
	KeyFile     string        `short:"k" long:"key" env:"DUR2WORK_KEY" default:"api_key.txt" description:"file with directions api key, relative to the binary location"`
	DB          string        `short:"d" long:"db" env:"DUR2WORK_DB" default:"dur.db" description:"sqlite database file, relative to the binary location"`
	APIURL      string        `long:"api-url" env:"DUR2WORK_API_URL" default:"https://maps.googleapis.com/maps/api/directions/json" description:"directions api endpoint"`
	Timeout     time.Duration `long:"timeout" env:"DUR2WORK_TIMEOUT" default:"10s" description:"directions request timeout"`
	Concurrency int           `long:"concurrency" env:"DUR2WORK_CONCURRENCY" default:"4" description:"max parallel directions requests"`
	Dbg         bool          `long:"dbg" env:"DUR2WORK_DEBUG" description:"debug mode"`

	Repeater struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"1" description:"how many times to request directions"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"3" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"repeater" namespace:"repeater" env-namespace:"DUR2WORK_REPEATER"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"file" env:"FILE" default:"dur2work.log" description:"log file, relative to the binary location"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in megabytes"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max age of rotated files in days"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"DUR2WORK_LOG"`

	Notify struct {
		SMTPHost     string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort     int           `long:"smtp-port" env:"SMTP_PORT" default:"25" description:"SMTP port"`
		SMTPUsername string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS      bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		SMTPTimeout  time.Duration `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
		FromEmail    string        `long:"from" env:"FROM" description:"SMTP from email"`
		ToEmails     []string      `long:"to" env:"TO" env-delim:"," description:"SMTP to email(s), notifications on failures"`
		HostName     string        `long:"host" env:"HOSTNAME" description:"host name running dur2work"`
	} `group:"notify" namespace:"notify" env-namespace:"DUR2WORK_NOTIFY"`
}

var revision = "unknown"

// exit codes, one per failure kind
const (
	exitOK = iota
	exitFailed
	exitBadArgs
	exitCredentials
	exitUpstream
	exitEmptyResult
	exitStore
	exitIntegrity
)

func main() {
	fmt.Printf("dur2work %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(exitBadArgs)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	rr, err := makeRoutes()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(exitBadArgs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT, SIGINT and SIGTERM

	if err := run(ctx, rr); err != nil {
		log.Printf("[ERROR] %v", err)
		notifyFailure(rr, err)
		cancel()
		os.Exit(exitCode(err))
	}
	cancel()
}

// run makes a single sampling run for all routes
func run(ctx context.Context, rr []routes.Route) error {
	key, err := directions.LoadKey(resolvePath(opts.KeyFile))
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(resolvePath(opts.DB))
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("[WARN] can't close store, %v", err)
		}
	}()

	trk := tracker.Tracker{
		Directions: directions.New(directions.Params{APIKey: key, BaseURL: opts.APIURL, Timeout: opts.Timeout}),
		Store:      st,
		Repeater: repeater.New(&strategy.Backoff{Repeats: opts.Repeater.Attempts, Duration: opts.Repeater.Duration,
			Factor: opts.Repeater.Factor, Jitter: opts.Repeater.Jitter}),
		Concurrency: opts.Concurrency,
	}
	_, err = trk.Do(ctx, rr)
	return err
}

// makeRoutes returns routes from the file or from the positional arguments
func makeRoutes() ([]routes.Route, error) {
	hasArgs := opts.Args.Start != "" || opts.Args.Destination != ""
	if opts.Routes != "" {
		if hasArgs {
			return nil, errors.New("routes file can't be combined with start and destination")
		}
		return routes.Load(opts.Routes)
	}

	r := routes.Route{Start: opts.Args.Start, Destination: opts.Args.Destination}
	if strings.TrimSpace(r.Start) == "" || strings.TrimSpace(r.Destination) == "" {
		return nil, errors.New("start and destination are required")
	}
	return []routes.Route{r}, nil
}

// exitCode maps run error to process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, directions.ErrCredentialLoad):
		return exitCredentials
	case errors.Is(err, directions.ErrEmptyResult):
		return exitEmptyResult
	case errors.Is(err, directions.ErrUpstreamRequest):
		return exitUpstream
	case errors.Is(err, store.ErrStoreConnection):
		return exitStore
	case errors.Is(err, store.ErrDataIntegrity):
		return exitIntegrity
	default:
		return exitFailed
	}
}

// resolvePath makes relative path relative to the binary location, the way cron jobs expect it
func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		log.Printf("[WARN] can't get executable location, %v", err)
		return p
	}
	return filepath.Join(filepath.Dir(exe), p)
}

func notifyFailure(rr []routes.Route, runErr error) {
	svc := makeNotifier()
	if svc == nil {
		return
	}
	names := make([]string, 0, len(rr))
	for _, r := range rr {
		names = append(names, r.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Notify.SMTPTimeout)
	defer cancel()
	if err := svc.OnError(ctx, notify.Failure{Routes: names, Err: runErr, TS: time.Now()}); err != nil {
		log.Printf("[WARN] failed to notify, %v", err)
	}
}

func makeNotifier() *notify.Service {
	return notify.NewService(notify.Params{
		SMTPHost:     opts.Notify.SMTPHost,
		SMTPPort:     opts.Notify.SMTPPort,
		SMTPTLS:      opts.Notify.SMTPTLS,
		SMTPUsername: opts.Notify.SMTPUsername,
		SMTPPassword: opts.Notify.SMTPPassword,
		SMTPTimeout:  opts.Notify.SMTPTimeout,
		FromEmail:    opts.Notify.FromEmail,
		ToEmails:     opts.Notify.ToEmails,
		HostName:     makeHostName(),
	})
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// setupLogs configures lgr and returns the writer used for the log file, os.Stdout if file logging disabled
func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec, log.LevelBraces}
	if opts.Dbg {
		logOpts = []log.Option{log.Debug, log.Msec, log.LevelBraces, log.CallerFunc, log.CallerPkg, log.CallerFile}
	}

	if !opts.Log.Enabled {
		log.Setup(logOpts...)
		return os.Stdout
	}

	out := &lumberjack.Logger{
		Filename:   resolvePath(opts.Log.Filename),
		MaxSize:    opts.Log.MaxSize,
		MaxBackups: opts.Log.MaxBackups,
		MaxAge:     opts.Log.MaxAge,
		Compress:   opts.Log.EnabledCompress,
	}
	log.Setup(append(logOpts, log.Out(io.MultiWriter(os.Stdout, out)))...)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[WARN] %v received, terminating", sig)
			cancel()
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
}
