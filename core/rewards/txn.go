package rewards

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"couponledger/core/epoch"
	"couponledger/core/types"
)

// txn is the working set of one operation. Accounts are copied on first
// touch; nothing reaches the ledger until commit.
type txn struct {
	ctx context.Context
	l   *Ledger
	now uint64

	params        Params
	paramsChanged bool
	global        *Integrator
	registry      *epoch.Registry
	accounts      map[common.Address]*Account

	newEpochs  []uint64
	newReports []uint64

	effects []effect
	events  []*types.Event
	after   []func()
}

func (l *Ledger) begin(ctx context.Context) *txn {
	if ctx == nil {
		ctx = context.Background()
	}
	return &txn{
		ctx:      ctx,
		l:        l,
		now:      l.now(),
		params:   l.params.Clone(),
		global:   l.global.Clone(),
		registry: l.registry.Clone(),
		accounts: make(map[common.Address]*Account),
	}
}

func (t *txn) account(addr common.Address) *Account {
	if acc, ok := t.accounts[addr]; ok {
		return acc
	}
	var acc *Account
	if existing, ok := t.l.accounts[addr]; ok {
		acc = existing.Clone()
	} else {
		acc = newAccount()
	}
	t.accounts[addr] = acc
	return acc
}

func (t *txn) current() (epoch.Epoch, bool) { return t.registry.Current() }

func (t *txn) emit(evt *types.Event) {
	if evt != nil {
		t.events = append(t.events, evt)
	}
}

func (t *txn) advance() error {
	current, ok := t.current()
	return t.global.Advance(t.now, current, ok)
}

type undo struct {
	params   Params
	global   *Integrator
	registry *epoch.Registry
	accounts map[common.Address]*Account

	paramsChanged bool
	dropEpochs    []uint64
	dropReports   []uint64
}

func (l *Ledger) commit(t *txn) undo {
	u := undo{
		params:        l.params,
		global:        l.global,
		registry:      l.registry,
		accounts:      make(map[common.Address]*Account, len(t.accounts)),
		paramsChanged: t.paramsChanged,
		dropEpochs:    t.newEpochs,
		dropReports:   t.newReports,
	}
	for addr, acc := range t.accounts {
		u.accounts[addr] = l.accounts[addr]
		l.accounts[addr] = acc
	}
	if t.paramsChanged {
		l.params = t.params
	}
	l.global = t.global
	l.registry = t.registry
	return u
}

func (l *Ledger) restore(u undo) {
	l.params = u.params
	l.global = u.global
	l.registry = u.registry
	for addr, acc := range u.accounts {
		if acc == nil {
			delete(l.accounts, addr)
			continue
		}
		l.accounts[addr] = acc
	}
}

func (t *txn) changes() changeset {
	c := changeset{global: t.global, accounts: t.accounts}
	if t.paramsChanged {
		c.params = &t.params
	}
	for _, id := range t.newEpochs {
		if e, ok := t.registry.Get(id); ok {
			c.epochs = append(c.epochs, e)
		}
	}
	for _, id := range t.newReports {
		if r, ok := t.registry.Report(id); ok {
			c.reports = append(c.reports, r)
		}
	}
	return c
}

func (u undo) changes() changeset {
	c := changeset{global: u.global, accounts: u.accounts, dropEpochs: u.dropEpochs, dropReports: u.dropReports}
	if u.paramsChanged {
		c.params = &u.params
	}
	return c
}
