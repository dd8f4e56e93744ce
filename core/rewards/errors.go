package rewards

import "errors"

var (
	// Configuration.
	ErrInvalidParams = errors.New("rewards: invalid params")
	ErrZeroAddress   = errors.New("rewards: zero address")
	ErrEpochStarted  = errors.New("rewards: epoch start already passed")

	// Sequencing.
	ErrEpochNotConfigured   = errors.New("rewards: no epoch configured")
	ErrDistributionTooEarly = errors.New("rewards: epoch has not ended")
	ErrAlreadyDistributed   = errors.New("rewards: epoch already distributed")

	// Arithmetic and balances.
	ErrInsufficientBalance = errors.New("rewards: outflow exceeds tracked balance")
	ErrZeroPrice           = errors.New("rewards: conversion price is zero")
	ErrZeroReward          = errors.New("rewards: total reward is zero")

	// Policy guards.
	ErrDepegGuard          = errors.New("rewards: reference price deviant, distribution blocked")
	ErrPriceStale          = errors.New("rewards: reference price stale, distribution blocked")
	ErrMintCeilingExceeded = errors.New("rewards: distribution exceeds mint ceiling")
	ErrBreakageSinkUnset   = errors.New("rewards: breakage sink not configured")
	ErrTreasuryUnset       = errors.New("rewards: treasury not configured")
	ErrNothingToClaim      = errors.New("rewards: nothing to claim")
	ErrClaimBelowMinimum   = errors.New("rewards: claim below minimum")
	ErrClaimAboveMaximum   = errors.New("rewards: claim above per-transaction maximum")
	ErrSolvencyStale       = errors.New("rewards: solvency data stale")
	ErrSolvencyHeadroom    = errors.New("rewards: claim exceeds solvency headroom")

	// Collaborators.
	ErrCustodyTransfer = errors.New("rewards: custody transfer failed")
	ErrMintFailed      = errors.New("rewards: reward mint failed")
	ErrPriceFeed       = errors.New("rewards: price feed unavailable")
	ErrPersist         = errors.New("rewards: persist state")
)
