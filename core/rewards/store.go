package rewards

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/storage"
)

const (
	paramsKey     = "rewards/params"
	globalKey     = "rewards/global"
	pausedKey     = "rewards/paused"
	epochPrefix   = "rewards/epoch/"
	reportPrefix  = "rewards/report/"
	accountPrefix = "rewards/account/"
)

// Store persists ledger state in a key-value database using RLP.
type Store struct {
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store { return &Store{db: db} }

// Open returns a ledger persisted in db, restoring whatever state db already
// holds.
func Open(db storage.Database, params Params, opts ...Option) (*Ledger, error) {
	return New(params, append(opts, WithStore(NewStore(db)))...)
}

type changeset struct {
	params      *Params
	global      *Integrator
	accounts    map[common.Address]*Account // nil value deletes
	epochs      []epoch.Epoch
	reports     []epoch.Report
	dropEpochs  []uint64
	dropReports []uint64
}

// Snapshot is the full persisted ledger state.
type Snapshot struct {
	Params   Params
	Global   *Integrator
	Registry *epoch.Registry
	Accounts map[common.Address]*Account
	Paused   bool
}

func idKey(prefix string, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func accountKey(addr common.Address) []byte {
	return append([]byte(accountPrefix), addr.Bytes()...)
}

// Save writes c in a single batch.
func (s *Store) Save(c changeset) error {
	batch := s.db.NewBatch()
	if c.params != nil {
		encoded, err := rlp.EncodeToBytes(c.params.stored())
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		batch.Put([]byte(paramsKey), encoded)
	}
	if c.global != nil {
		encoded, err := rlp.EncodeToBytes(c.global.stored())
		if err != nil {
			return fmt.Errorf("encode global: %w", err)
		}
		batch.Put([]byte(globalKey), encoded)
	}
	for addr, acc := range c.accounts {
		if acc == nil {
			batch.Delete(accountKey(addr))
			continue
		}
		encoded, err := rlp.EncodeToBytes(acc.stored())
		if err != nil {
			return fmt.Errorf("encode account %s: %w", addr.Hex(), err)
		}
		batch.Put(accountKey(addr), encoded)
	}
	for _, e := range c.epochs {
		encoded, err := rlp.EncodeToBytes(e)
		if err != nil {
			return fmt.Errorf("encode epoch %d: %w", e.ID, err)
		}
		batch.Put(idKey(epochPrefix, e.ID), encoded)
	}
	for _, r := range c.reports {
		encoded, err := rlp.EncodeToBytes(r.Stored())
		if err != nil {
			return fmt.Errorf("encode report %d: %w", r.EpochID, err)
		}
		batch.Put(idKey(reportPrefix, r.EpochID), encoded)
	}
	for _, id := range c.dropEpochs {
		batch.Delete(idKey(epochPrefix, id))
	}
	for _, id := range c.dropReports {
		batch.Delete(idKey(reportPrefix, id))
	}
	if batch.Len() == 0 {
		return nil
	}
	return batch.Write()
}

// SavePaused records the pause flag.
func (s *Store) SavePaused(paused bool) error {
	encoded, err := rlp.EncodeToBytes(paused)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(pausedKey), encoded)
}

// Load reads the full ledger state. found is false for an empty database.
func (s *Store) Load() (Snapshot, bool, error) {
	rawParams, err := s.db.Get([]byte(paramsKey))
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var sp storedParams
	if err := rlp.DecodeBytes(rawParams, &sp); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode params: %w", err)
	}
	params, err := sp.params()
	if err != nil {
		return Snapshot{}, false, err
	}
	snap := Snapshot{Params: params, Global: NewIntegrator(), Accounts: make(map[common.Address]*Account)}

	if raw, err := s.db.Get([]byte(globalKey)); err == nil {
		var sg storedIntegrator
		if err := rlp.DecodeBytes(raw, &sg); err != nil {
			return Snapshot{}, false, fmt.Errorf("decode global: %w", err)
		}
		if snap.Global, err = sg.integrator(); err != nil {
			return Snapshot{}, false, err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, false, err
	}

	if raw, err := s.db.Get([]byte(pausedKey)); err == nil {
		if err := rlp.DecodeBytes(raw, &snap.Paused); err != nil {
			return Snapshot{}, false, fmt.Errorf("decode paused: %w", err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, false, err
	}

	var epochs []epoch.Epoch
	err = s.db.Iterate([]byte(epochPrefix), func(_, value []byte) error {
		var e epoch.Epoch
		if err := rlp.DecodeBytes(value, &e); err != nil {
			return fmt.Errorf("decode epoch: %w", err)
		}
		epochs = append(epochs, e)
		return nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	var reports []epoch.Report
	err = s.db.Iterate([]byte(reportPrefix), func(_, value []byte) error {
		var sr epoch.StoredReport
		if err := rlp.DecodeBytes(value, &sr); err != nil {
			return fmt.Errorf("decode report: %w", err)
		}
		r, err := sr.Report()
		if err != nil {
			return err
		}
		reports = append(reports, r)
		return nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	if snap.Registry, err = epoch.Restore(epochs, reports); err != nil {
		return Snapshot{}, false, err
	}

	err = s.db.Iterate([]byte(accountPrefix), func(key, value []byte) error {
		var sa storedAccount
		if err := rlp.DecodeBytes(value, &sa); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		acc, err := sa.account()
		if err != nil {
			return err
		}
		snap.Accounts[common.BytesToAddress(key[len(accountPrefix):])] = acc
		return nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

type storedIntegrator struct {
	EligibleUnits         []byte
	EligibleSupply        []byte
	LastUpdate            uint64
	TreasuryUnits         []byte
	FutureBreakageUnits   []byte
	ExcludedSupply        []byte
	TrackedSupply         []byte
	CumulativeIndex       []byte
	Dust                  []byte
	LifetimeBreakageUnits []byte
	TotalDeclared         []byte
	TotalClaimed          []byte
	TotalSinkMinted       []byte
}

func (g *Integrator) stored() storedIntegrator {
	return storedIntegrator{
		EligibleUnits:         fixedpoint.Bytes(g.EligibleUnits),
		EligibleSupply:        fixedpoint.Bytes(g.EligibleSupply),
		LastUpdate:            g.LastUpdate,
		TreasuryUnits:         fixedpoint.Bytes(g.TreasuryUnits),
		FutureBreakageUnits:   fixedpoint.Bytes(g.FutureBreakageUnits),
		ExcludedSupply:        fixedpoint.Bytes(g.ExcludedSupply),
		TrackedSupply:         fixedpoint.Bytes(g.TrackedSupply),
		CumulativeIndex:       fixedpoint.Bytes(g.CumulativeIndex.Raw()),
		Dust:                  fixedpoint.Bytes(g.Dust),
		LifetimeBreakageUnits: fixedpoint.Bytes(g.LifetimeBreakageUnits),
		TotalDeclared:         fixedpoint.Bytes(g.TotalDeclared),
		TotalClaimed:          fixedpoint.Bytes(g.TotalClaimed),
		TotalSinkMinted:       fixedpoint.Bytes(g.TotalSinkMinted),
	}
}

func (s storedIntegrator) integrator() (*Integrator, error) {
	fields := [][]byte{s.EligibleUnits, s.EligibleSupply, s.TreasuryUnits, s.FutureBreakageUnits,
		s.ExcludedSupply, s.TrackedSupply, s.CumulativeIndex, s.Dust, s.LifetimeBreakageUnits,
		s.TotalDeclared, s.TotalClaimed, s.TotalSinkMinted}
	values := make([]*uint256.Int, len(fields))
	for i, raw := range fields {
		v, err := fixedpoint.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &Integrator{
		EligibleUnits:         values[0],
		EligibleSupply:        values[1],
		LastUpdate:            s.LastUpdate,
		TreasuryUnits:         values[2],
		FutureBreakageUnits:   values[3],
		ExcludedSupply:        values[4],
		TrackedSupply:         values[5],
		CumulativeIndex:       fixedpoint.NewScaled(values[6]),
		Dust:                  values[7],
		LifetimeBreakageUnits: values[8],
		TotalDeclared:         values[9],
		TotalClaimed:          values[10],
		TotalSinkMinted:       values[11],
	}, nil
}
