package balance

import (
	"context"
	"fmt"
)

// OperationFunc runs one operation against one token.
type OperationFunc func(ctx context.Context, t Token) (*Result, error)

// Summary tallies a batch.
type Summary struct {
	Processed int
	Succeeded int
	Skipped   int
	Aborted   int
	Results   []*Result
}

// Run applies op to each token in turn. An I/O failure ends the batch with
// that error; every other failure is logged and the batch moves on.
func (e *Engine) Run(ctx context.Context, tokens []Token, op OperationFunc) (*Summary, error) {
	summary := &Summary{}

	for _, t := range tokens {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if t.Type().SectorCount() == 0 {
			logger.Warn("skipping token", "uid", t.UID(), "type", t.Type())
			summary.Skipped++
			continue
		}

		res, err := e.runToken(ctx, t, op)
		summary.Processed++
		if res != nil {
			summary.Results = append(summary.Results, res)
		}

		switch d := Classify(err); {
		case err == nil:
			summary.Succeeded++
		case d == Fatal:
			summary.Aborted++
			return summary, err
		default:
			logger.Warn("token failed", "uid", t.UID(), "disposition", d, "error", err)
			summary.Aborted++
		}
	}

	return summary, nil
}

// RunPresent applies op to the tokens currently listed by en.
func (e *Engine) RunPresent(ctx context.Context, en Enumerator, op OperationFunc) (*Summary, error) {
	tokens, err := en.Tokens(ctx)
	if err != nil {
		return nil, ioFailure("list tokens", err)
	}

	if len(tokens) == 0 {
		return nil, ErrNoToken
	}

	return e.Run(ctx, tokens, op)
}

// IssueReceiver offers to write the balance credited by a committed transfer
// to the receiver's token. Only the token bound to the receiver account, or any
// token but the sender's when the account is unbound, is written. A declined
// offer returns a nil summary.
func (e *Engine) IssueReceiver(ctx context.Context, en Enumerator, p Prompter, transfer *Result) (*Summary, error) {
	if transfer == nil || transfer.Operation != OpTransfer || transfer.Outcome != OutcomeCommitted || transfer.Receiver == nil {
		return nil, nil
	}
	receiver := transfer.Receiver

	question := fmt.Sprintf("present the card of %s and write its balance %s now?", receiver.Identity, receiver.Balance.StringFixed(2))
	ok, err := p.Confirm(ctx, question)
	if err != nil {
		return nil, cancelled(err)
	}
	if !ok {
		logger.Info("receiver token left for a later issue", "identity", receiver.Identity)
		return nil, nil
	}

	tokens, err := en.Tokens(ctx)
	if err != nil {
		return nil, ioFailure("list tokens", err)
	}

	var matching []Token
	for _, t := range tokens {
		switch {
		case receiver.TokenUID != "" && t.UID() != receiver.TokenUID:
		case receiver.TokenUID == "" && t.UID() == transfer.TokenUID:
		default:
			matching = append(matching, t)
		}
	}

	if len(matching) == 0 {
		return nil, fmt.Errorf("%w: card of %s", ErrNoToken, receiver.Identity)
	}

	return e.Run(ctx, matching[:1], func(ctx context.Context, t Token) (*Result, error) {
		return e.Issue(ctx, t, receiver.Identity)
	})
}

func (e *Engine) runToken(ctx context.Context, t Token, op OperationFunc) (*Result, error) {
	if e.opts.TokenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TokenTimeout)
		defer cancel()
	}

	return op(ctx, t)
}
