package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shopspring/decimal"
	"github.com/status-im/mifare-balance-go/ledger"
	"github.com/status-im/mifare-balance-go/types"
)

// Operation names a transaction run against one token.
type Operation string

const (
	OpValidate Operation = "validate"
	OpTopUp    Operation = "topup"
	OpCheckout Operation = "checkout"
	OpTransfer Operation = "transfer"
	OpIssue    Operation = "issue"
	OpFormat   Operation = "format"
)

type Outcome string

const (
	OutcomeMatch            Outcome = "match"
	OutcomeIdentityMismatch Outcome = "identity-mismatch"
	OutcomeBalanceMismatch  Outcome = "balance-mismatch"
	OutcomeNotFound         Outcome = "not-found"
	OutcomeCommitted        Outcome = "committed"
	OutcomeFormatted        Outcome = "formatted"
	OutcomeAborted          Outcome = "aborted"
)

// TransferLimit is the exclusive ceiling of a balance after a transfer.
var TransferLimit = decimal.NewFromInt(100)

// Result describes what an operation did to one token.
type Result struct {
	Operation Operation
	TokenUID  string
	// State is the last state reached. AbortedAt is the state the operation
	// aborted from when State is StateAborted.
	State     State
	AbortedAt State
	Trace     []State
	// Record is the balance record read from the token, Written the one committed to it.
	Record  *types.BalanceRecord
	Written *types.BalanceRecord
	// Account is the ledger account of the token, Receiver the account credited by a transfer.
	Account  *ledger.Account
	Receiver *ledger.Account
	Outcome  Outcome
	Err      error
}

// Ledger is the authoritative balance store.
type Ledger interface {
	FindAccount(ctx context.Context, identity string) (*ledger.Account, error)
	FindAccountByToken(ctx context.Context, tokenUID string) (*ledger.Account, error)
	Debit(ctx context.Context, identity, tokenUID string, balance, price decimal.Decimal) (*ledger.Account, error)
	Transfer(ctx context.Context, sender, receiver *ledger.Account) (*ledger.Account, error)
}

// Prompter asks the operator for the input of a transfer.
type Prompter interface {
	ReceiverIdentity(ctx context.Context) (string, error)
	Confirm(ctx context.Context, question string) (bool, error)
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	PartialCommit(operation string)
	SectorFormatted()
	KeyRecovery(found bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) PartialCommit(string)                           {}
func (nopRecorder) SectorFormatted()                               {}
func (nopRecorder) KeyRecovery(bool)                               {}

type Options struct {
	// TokenTimeout bounds each token of a batch. Zero disables it.
	TokenTimeout time.Duration
	// FastFormat erases only the directory sectors of a transfer sender or formatted token.
	FastFormat bool
	// ConfirmFormat asks the prompter before erasing a transfer sender.
	ConfirmFormat bool
	Progress      ProgressFunc
}

// Engine runs the token transactions against a ledger.
type Engine struct {
	ledger   Ledger
	recorder Recorder
	opts     Options
}

func NewEngine(l Ledger, opts Options) *Engine {
	return &Engine{
		ledger:   l,
		recorder: nopRecorder{},
		opts:     opts,
	}
}

// SetRecorder routes the operation metrics to r.
func (e *Engine) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	e.recorder = r
}

func (e *Engine) run(op Operation, t Token, fn func(res *Result, log log.Logger) error) (*Result, error) {
	res := &Result{Operation: op, TokenUID: t.UID()}
	log := logger.New("op", op, "uid", t.UID())
	start := time.Now()

	err := fn(res, log)
	if err != nil {
		res.abort(log, err)
	} else {
		res.advance(StateDone)
		log.Info("operation done", "outcome", res.Outcome)
	}

	disconnect(t)

	e.recorder.ObserveOperation(string(op), string(res.Outcome), time.Since(start))
	var partial *PartialCommitError
	if errors.As(err, &partial) {
		e.recorder.PartialCommit(string(op))
	}

	return res, err
}

// Validate compares the token record with the ledger without changing either.
func (e *Engine) Validate(ctx context.Context, t Token) (*Result, error) {
	return e.run(OpValidate, t, func(res *Result, log log.Logger) error {
		record, err := e.readRecord(ctx, res, t)
		if err != nil {
			return err
		}

		account, err := e.accountByToken(ctx, t)
		if errors.Is(err, ErrUnknownAccount) {
			res.Outcome = OutcomeNotFound
			return nil
		}
		if err != nil {
			return err
		}
		res.Account = account

		switch {
		case record.Identity != account.Identity:
			res.Outcome = OutcomeIdentityMismatch
		case !record.Balance.Equal(account.Balance):
			res.Outcome = OutcomeBalanceMismatch
		default:
			res.Outcome = OutcomeMatch
			res.advance(StateValidated)
		}

		log.Debug("record validated", "record", record, "ledger", account.Balance.StringFixed(2), "outcome", res.Outcome)
		return nil
	})
}

// TopUp writes the ledger balance of the token's account onto the token.
func (e *Engine) TopUp(ctx context.Context, t Token) (*Result, error) {
	return e.run(OpTopUp, t, func(res *Result, log log.Logger) error {
		if err := e.connect(ctx, res, t); err != nil {
			return err
		}

		account, err := e.accountByToken(ctx, t)
		if err != nil {
			return err
		}
		res.Account = account

		return e.commitToken(ctx, res, t, &types.BalanceRecord{Identity: account.Identity, Balance: account.Balance})
	})
}

// Issue writes the ledger balance of identity onto the token.
func (e *Engine) Issue(ctx context.Context, t Token, identity string) (*Result, error) {
	return e.run(OpIssue, t, func(res *Result, log log.Logger) error {
		identity, err := types.NormalizeIdentity(identity)
		if err != nil {
			return err
		}

		if err := e.connect(ctx, res, t); err != nil {
			return err
		}

		account, err := e.ledger.FindAccount(ctx, identity)
		if err != nil {
			return unknownAccount(identity, err)
		}
		res.Account = account

		if account.TokenUID != "" && account.TokenUID != t.UID() {
			log.Warn("token is not the one bound to the account", "identity", identity, "bound", account.TokenUID)
		}

		return e.commitToken(ctx, res, t, &types.BalanceRecord{Identity: account.Identity, Balance: account.Balance})
	})
}

// Checkout debits price from the token's account and writes the new balance
// onto the token. The ledger is committed first and never reverted.
func (e *Engine) Checkout(ctx context.Context, t Token, price decimal.Decimal) (*Result, error) {
	return e.run(OpCheckout, t, func(res *Result, log log.Logger) error {
		if err := validateAmount(price); err != nil {
			return err
		}

		record, err := e.readRecord(ctx, res, t)
		if err != nil {
			return err
		}

		account, err := e.accountByToken(ctx, t)
		if err != nil {
			return err
		}
		res.Account = account

		if err := reconcile(record, account); err != nil {
			return err
		}

		if price.GreaterThan(account.Balance) {
			return fmt.Errorf("%w: price %s, balance %s", ErrInsufficientFunds, price.StringFixed(2), account.Balance.StringFixed(2))
		}

		written := &types.BalanceRecord{Identity: account.Identity, Balance: account.Balance.Sub(price)}
		if _, err := written.Serialize(); err != nil {
			return err
		}
		res.advance(StateValidated)

		if err := ctx.Err(); err != nil {
			return err
		}

		updated, err := e.ledger.Debit(ctx, account.Identity, t.UID(), account.Balance, price)
		if err != nil {
			return fmt.Errorf("debit ledger: %w", err)
		}
		res.advance(StateLedgerCommitted)
		log.Info("ledger debited", "identity", account.Identity, "price", price.StringFixed(2), "balance", updated.Balance.StringFixed(2))

		if err := e.writeRecord(ctx, res, t, written); err != nil {
			return &PartialCommitError{
				Operation: OpCheckout,
				TokenUID:  t.UID(),
				Identity:  account.Identity,
				Ledger:    "debited to " + updated.Balance.StringFixed(2),
				Err:       err,
			}
		}

		res.Outcome = OutcomeCommitted
		return nil
	})
}

// Transfer moves the whole balance of the presented token to the account the
// operator names, erasing the sender token and deleting its account.
func (e *Engine) Transfer(ctx context.Context, t Token, p Prompter) (*Result, error) {
	return e.run(OpTransfer, t, func(res *Result, log log.Logger) error {
		record, err := e.readRecord(ctx, res, t)
		if err != nil {
			return err
		}

		sender, err := e.accountByToken(ctx, t)
		if err != nil {
			return err
		}
		res.Account = sender

		if err := reconcile(record, sender); err != nil {
			return err
		}

		if !sender.Balance.IsPositive() {
			return fmt.Errorf("%w: nothing to transfer", ErrInsufficientFunds)
		}

		receiver, err := e.promptReceiver(ctx, log, p, sender)
		if err != nil {
			return err
		}

		combined := sender.Balance.Add(receiver.Balance)
		if combined.GreaterThanOrEqual(TransferLimit) {
			return fmt.Errorf("%w: %s + %s", ErrLimitExceeded, sender.Balance.StringFixed(2), receiver.Balance.StringFixed(2))
		}
		res.advance(StateValidated)

		if e.opts.ConfirmFormat {
			ok, err := p.Confirm(ctx, fmt.Sprintf("erase token %s of %s", t.UID(), sender.Identity))
			if err != nil {
				return cancelled(err)
			}
			if !ok {
				return ErrCancelled
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := FormatToken(t, e.formatOptions()); err != nil {
			return err
		}
		log.Info("sender token erased", "identity", sender.Identity)

		partial := func(err error) error {
			return &PartialCommitError{
				Operation: OpTransfer,
				TokenUID:  t.UID(),
				Identity:  sender.Identity,
				Ledger:    "unchanged, sender token erased",
				Err:       err,
			}
		}

		if err := ctx.Err(); err != nil {
			return partial(err)
		}

		updated, err := e.ledger.Transfer(ctx, sender, receiver)
		if err != nil {
			return partial(fmt.Errorf("transfer ledger: %w", err))
		}
		res.Receiver = updated
		res.advance(StateLedgerCommitted)
		log.Info("balance transferred", "sender", sender.Identity, "receiver", updated.Identity, "balance", updated.Balance.StringFixed(2))

		res.Outcome = OutcomeCommitted
		return nil
	})
}

// Format restores the token to the transport configuration.
func (e *Engine) Format(ctx context.Context, t Token) (*Result, error) {
	return e.run(OpFormat, t, func(res *Result, log log.Logger) error {
		if err := e.connect(ctx, res, t); err != nil {
			return err
		}

		if err := FormatToken(t, e.formatOptions()); err != nil {
			return err
		}
		res.advance(StateTokenCommitted)

		res.Outcome = OutcomeFormatted
		return nil
	})
}

func (e *Engine) promptReceiver(ctx context.Context, log log.Logger, p Prompter, sender *ledger.Account) (*ledger.Account, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		input, err := p.ReceiverIdentity(ctx)
		if err != nil {
			return nil, cancelled(err)
		}

		identity, err := types.NormalizeIdentity(input)
		if err != nil {
			log.Warn("invalid receiver identity", "input", input, "error", err)
			continue
		}

		if identity == sender.Identity {
			log.Warn("receiver is the sender", "identity", identity)
			continue
		}

		receiver, err := e.ledger.FindAccount(ctx, identity)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			log.Warn("no account for receiver", "identity", identity)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find receiver: %w", err)
		}

		return receiver, nil
	}
}

func (e *Engine) connect(ctx context.Context, res *Result, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Type().SectorCount() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedTag, t.Type())
	}

	if err := t.Connect(); err != nil {
		return ioFailure("connect", err)
	}
	res.advance(StateTokenPresent)

	return nil
}

func (e *Engine) readRecord(ctx context.Context, res *Result, t Token) (*types.BalanceRecord, error) {
	if err := e.connect(ctx, res, t); err != nil {
		return nil, err
	}

	mad, err := ReadDirectory(t)
	if err != nil {
		if !isAuthRejected(err) {
			res.advance(StateAuthenticated)
		}
		return nil, err
	}
	res.advance(StateAuthenticated)
	res.advance(StateDirectoryLoaded)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := readBalanceRecord(t, mad)
	if err != nil {
		return nil, err
	}
	res.Record = record
	res.advance(StateRecordDecoded)

	return record, nil
}

func (e *Engine) commitToken(ctx context.Context, res *Result, t Token, record *types.BalanceRecord) error {
	if _, err := record.Serialize(); err != nil {
		return err
	}
	res.advance(StateValidated)

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.writeRecord(ctx, res, t, record); err != nil {
		return err
	}

	res.Outcome = OutcomeCommitted
	return nil
}

func (e *Engine) writeRecord(ctx context.Context, res *Result, t Token, record *types.BalanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := WriteBalanceRecord(t, record, e.observeKey); err != nil {
		return err
	}
	res.Written = record
	res.advance(StateTokenCommitted)

	return nil
}

func (e *Engine) accountByToken(ctx context.Context, t Token) (*ledger.Account, error) {
	account, err := e.ledger.FindAccountByToken(ctx, t.UID())
	if err != nil {
		return nil, unknownAccount("token "+t.UID(), err)
	}

	return account, nil
}

func (e *Engine) formatOptions() FormatOptions {
	return FormatOptions{
		Fast: e.opts.FastFormat,
		Progress: func(s types.Sector, done, total int) {
			e.recorder.SectorFormatted()
			if e.opts.Progress != nil {
				e.opts.Progress(s, done, total)
			}
		},
		OnKey: e.observeKey,
	}
}

func (e *Engine) observeKey(_ types.Sector, _ types.KeyPair, err error) {
	e.recorder.KeyRecovery(err == nil)
}

// reconcile checks the token record against the ledger account it was looked up by.
func reconcile(record *types.BalanceRecord, account *ledger.Account) error {
	if record.Identity != account.Identity {
		return fmt.Errorf("%w: token %q, ledger %q", ErrIdentityMismatch, record.Identity, account.Identity)
	}

	if !record.Balance.Equal(account.Balance) {
		return fmt.Errorf("%w: token %s, ledger %s", ErrBalanceMismatch, record.Balance.StringFixed(2), account.Balance.StringFixed(2))
	}

	return nil
}

// validateAmount accepts positive amounts in cents.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	return nil
}

func unknownAccount(what string, err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, what)
	}

	return fmt.Errorf("find account: %w", err)
}

func cancelled(err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
