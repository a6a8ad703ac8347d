package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shopspring/decimal"
	balance "github.com/status-im/mifare-balance-go"
	"github.com/status-im/mifare-balance-go/config"
	"github.com/status-im/mifare-balance-go/ledger"
	"github.com/status-im/mifare-balance-go/metrics"
	"github.com/status-im/mifare-balance-go/pcsc"
	"github.com/status-im/mifare-balance-go/types"
)

type commandFunc func(*balance.Engine) (balance.OperationFunc, error)

var (
	logger = log.New("package", "mifare-balance/cmd/mifare-balance")

	commands map[string]commandFunc

	flagCommand  = flag.String("c", "", "command")
	flagPrice    = flag.String("p", "", "checkout price, DD.DD")
	flagIdentity = flag.String("i", "", "identity to issue a token to")
	flagFast     = flag.Bool("f", false, "erase the directory sectors only when formatting")
	flagConfirm  = flag.Bool("y", false, "erase transfer senders without asking")
	flagLogLevel = flag.String("l", "", `Log level, one of: "ERROR", "WARN", "INFO", "DEBUG", and "TRACE"`)
)

func initLogger(defaultLevel string) {
	if *flagLogLevel == "" {
		*flagLogLevel = defaultLevel
	}

	level, err := log.LvlFromString(strings.ToLower(*flagLogLevel))
	if err != nil {
		stdlog.Fatal(err)
	}

	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	filteredHandler := log.LvlFilterHandler(level, handler)
	log.Root().SetHandler(filteredHandler)
}

func init() {
	flag.Parse()

	commands = map[string]commandFunc{
		"validate": commandValidate,
		"topup":    commandTopUp,
		"checkout": commandCheckout,
		"transfer": commandTransfer,
		"issue":    commandIssue,
		"format":   commandFormat,
	}
}

func usage() {
	fmt.Printf("\nUsage: mifare-balance -c COMMAND [FLAGS]\n\nValid commands:\n\n")
	for name := range commands {
		fmt.Printf("- %s\n", name)
	}
	fmt.Print("\nFlags:\n\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func fail(msg string, ctx ...interface{}) {
	logger.Error(msg, ctx...)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		initLogger("info")
		fail("error loading configuration", "error", err)
	}
	initLogger(cfg.LogLevel)

	if *flagCommand == "" {
		logger.Error("you must specify a command")
		usage()
	}

	command, ok := commands[*flagCommand]
	if !ok {
		logger.Error("unknown command", "command", *flagCommand)
		usage()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, cfg, command))
}

func run(ctx context.Context, cfg *config.Config, command commandFunc) int {
	db, err := ledger.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("error opening ledger", "driver", cfg.DBDriver, "error", err)
		return 1
	}
	defer db.Close()

	if err := ledger.RunMigrations(db); err != nil {
		logger.Error("error migrating ledger", "error", err)
		return 1
	}

	m := metrics.NewMetrics()
	engine := balance.NewEngine(ledger.NewStore(db), balance.Options{
		TokenTimeout:  cfg.TokenTimeout,
		FastFormat:    cfg.FastFormat || *flagFast,
		ConfirmFormat: !*flagConfirm,
		Progress: func(sector types.Sector, done, total int) {
			logger.Debug("sector formatted", "sector", sector, "done", done, "total", total)
		},
	})
	engine.SetRecorder(m)

	op, err := command(engine)
	if err != nil {
		logger.Error("invalid arguments", "command", *flagCommand, "error", err)
		return 1
	}

	cardCtx, err := pcsc.EstablishContext(cfg.Reader)
	if err != nil {
		logger.Error("error establishing card context", "error", err)
		return 1
	}
	defer func() {
		if err := cardCtx.Release(); err != nil {
			logger.Error("error releasing context", "error", err)
		}
	}()

	summary, err := engine.RunPresent(ctx, cardCtx, op)
	if summary != nil {
		printSummary(summary)
	}

	if err == nil && *flagCommand == "transfer" {
		for _, res := range summary.Results {
			issued, ierr := engine.IssueReceiver(ctx, cardCtx, stdinPrompter{}, res)
			if issued != nil {
				printSummary(issued)
			}
			if ierr != nil {
				logger.Warn("receiver token not written, use the issue command", "identity", res.Receiver.Identity, "error", ierr)
			}
		}
	}

	if cfg.MetricsFile != "" {
		if werr := m.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Error("error writing metrics", "path", cfg.MetricsFile, "error", werr)
		}
	}

	if err != nil {
		logger.Error("error executing command", "command", *flagCommand, "error", err)
		return 1
	}

	if summary.Aborted > 0 {
		return 2
	}

	return 0
}

func printSummary(s *balance.Summary) {
	for _, res := range s.Results {
		fmt.Printf("%s %s: %s", res.TokenUID, res.Operation, res.Outcome)
		if res.Record != nil {
			fmt.Printf(" token=%s", res.Record)
		}
		if res.Written != nil {
			fmt.Printf(" written=%s", res.Written)
		}
		if res.Account != nil {
			fmt.Printf(" ledger=%s", res.Account.Balance.StringFixed(2))
		}
		if res.Receiver != nil {
			fmt.Printf(" receiver=%s:%s", res.Receiver.Identity, res.Receiver.Balance.StringFixed(2))
		}
		if res.Err != nil {
			fmt.Printf(" error=%q", res.Err)
		}
		fmt.Println()
	}

	fmt.Printf("\n%d processed, %d succeeded, %d skipped, %d aborted\n", s.Processed, s.Succeeded, s.Skipped, s.Aborted)
}

func ask(description string) (string, error) {
	r := bufio.NewReader(os.Stdin)
	fmt.Printf("%s: ", description)
	text, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

// stdinPrompter asks the operator on the terminal.
type stdinPrompter struct{}

func (stdinPrompter) ReceiverIdentity(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s, err := ask("receiver identity (empty to cancel)")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.New("no receiver given")
	}

	return s, nil
}

func (stdinPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s, err := ask(question + " [y/N]")
	if err != nil {
		return false, err
	}

	return strings.EqualFold(s, "y") || strings.EqualFold(s, "yes"), nil
}

func commandValidate(e *balance.Engine) (balance.OperationFunc, error) {
	return e.Validate, nil
}

func commandTopUp(e *balance.Engine) (balance.OperationFunc, error) {
	return e.TopUp, nil
}

func commandCheckout(e *balance.Engine) (balance.OperationFunc, error) {
	if *flagPrice == "" {
		return nil, errors.New("you must specify a price with the -p flag")
	}

	price, err := decimal.NewFromString(*flagPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", *flagPrice, err)
	}

	return func(ctx context.Context, t balance.Token) (*balance.Result, error) {
		return e.Checkout(ctx, t, price)
	}, nil
}

func commandTransfer(e *balance.Engine) (balance.OperationFunc, error) {
	return func(ctx context.Context, t balance.Token) (*balance.Result, error) {
		return e.Transfer(ctx, t, stdinPrompter{})
	}, nil
}

func commandIssue(e *balance.Engine) (balance.OperationFunc, error) {
	if *flagIdentity == "" {
		return nil, errors.New("you must specify an identity with the -i flag")
	}

	return func(ctx context.Context, t balance.Token) (*balance.Result, error) {
		return e.Issue(ctx, t, *flagIdentity)
	}, nil
}

func commandFormat(e *balance.Engine) (balance.OperationFunc, error) {
	return e.Format, nil
}
