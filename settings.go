/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package ircu

// Limiter Constants
const (
	// Messages
	MaxMsgLength  int = 512
	MaxMsgParams      = 15
	MaxTagsLength int = 4096

	// Channels
	MaxChanLength  = 16
	MaxKickLength  = 400
	MaxTopicLength = 400
	MaxListItems   = 256
	MaxModeChange  = 6

	// Users
	MaxNickLength  = 16
	MaxUserLength  = 16
	MaxVHostLength = 64
	MaxJoinedChans = 32
	MaxAwayLength  = 100
)

// Channel subsystem limits (spec.md Global invariant 7, components C5/C6/C8/C9/C11).
const (
	// MaxBans caps the number of bans a channel may carry.
	MaxBans = 45

	// MaxBanLength caps the summed length of every ban mask text on a channel.
	MaxBanLength = 1024

	// MaxChannelsPerUser caps the invite list length per user (§4.6).
	MaxChannelsPerUser = MaxJoinedChans

	// MaxModeParams caps the number of parameterised mode changes a single
	// ModeBuf batches before a flush is forced (§4.8).
	MaxModeParams = 6

	// MaxJoinArgs caps the number of channel names a single JoinBuf batches (§4.11).
	MaxJoinArgs = 15

	// KeyLen is the maximum length of a channel key, truncated at the first
	// space, colon, or this length, whichever comes first (§4.7).
	KeyLen = 23

	// TSLag is a slack, in seconds, for comparing disagreeing creation
	// timestamps (§4.9.1). ArbitrateTimestamp compares timestamps exactly
	// and does not read it.
	TSLag = 7

	// BounceFuzz is a margin, in bytes, below MaxMsgLength for frame-size
	// estimates (§4.8, §4.10). Nothing in the package reads it; ModeBuf
	// lines are bounded by MaxModeWireLength.
	BounceFuzz = 60

	// HubJobRate is the steady-state rate, in jobs per second, at which the
	// Hub admits submitted channel operations (spec.md §5).
	HubJobRate = 200

	// HubJobBurst is the Hub rate limiter's bucket size: the most jobs it
	// admits at once before HubJobRate paces the rest.
	HubJobBurst = 50
)
